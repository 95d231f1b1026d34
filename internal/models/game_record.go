package models

import "time"

// GameRecord 已结束对局的结果
type GameRecord struct {
	BaseModel
	RoomID     string     `gorm:"size:64;not null;index" json:"room_id"`
	GameType   string     `gorm:"size:32;not null;index" json:"game_type"`
	Players    StringList `gorm:"type:text" json:"players"`
	Winners    StringList `gorm:"type:text" json:"winners"`
	EndReason  string     `gorm:"size:32" json:"end_reason"`
	Moves      int        `gorm:"default:0" json:"moves"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `gorm:"index" json:"finished_at"`
}

// TableName 指定表名
func (GameRecord) TableName() string {
	return "game_records"
}

// Duration 对局时长
func (r *GameRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
