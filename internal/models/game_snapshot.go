package models

// GameSnapshot 房间当前游戏状态快照，每个房间一行
type GameSnapshot struct {
	BaseModel
	RoomID    string `gorm:"uniqueIndex;size:64;not null" json:"room_id"`
	GameType  string `gorm:"size:32;not null;index" json:"game_type"`
	Status    string `gorm:"size:20;not null;index" json:"status"`
	StateData string `gorm:"type:text" json:"state_data"` // JSON格式的GameState
}

// TableName 指定表名
func (GameSnapshot) TableName() string {
	return "game_snapshots"
}
