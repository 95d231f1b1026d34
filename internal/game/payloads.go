package game

import "encoding/json"

// PieceType 棋子类型
type PieceType string

const (
	Pawn   PieceType = "pawn"
	Rook   PieceType = "rook"
	Knight PieceType = "knight"
	Bishop PieceType = "bishop"
	Queen  PieceType = "queen"
	King   PieceType = "king"
)

// Color 棋子颜色
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent 对方颜色
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Piece 棋子，零值表示空格
type Piece struct {
	Type     PieceType `json:"type"`
	Color    Color     `json:"color"`
	HasMoved bool      `json:"hasMoved"`
}

// IsEmpty 是否为空格
func (p Piece) IsEmpty() bool {
	return p.Type == ""
}

// MarshalJSON 空格编码为null
func (p Piece) MarshalJSON() ([]byte, error) {
	if p.IsEmpty() {
		return []byte("null"), nil
	}
	type piece Piece
	return json.Marshal(piece(p))
}

// CastlingRights 王车易位权
type CastlingRights struct {
	WhiteKingSide  bool `json:"whiteKingSide"`
	WhiteQueenSide bool `json:"whiteQueenSide"`
	BlackKingSide  bool `json:"blackKingSide"`
	BlackQueenSide bool `json:"blackQueenSide"`
}

// ChessData 国际象棋数据
type ChessData struct {
	Board          Grid[Piece]      `json:"board"`
	PlayerColors   map[string]Color `json:"playerColors"`
	CastlingRights CastlingRights   `json:"castlingRights"`
	HalfMoveClock  int              `json:"halfMoveClock"`
	FullMoveNumber int              `json:"fullMoveNumber"`
	Check          Color            `json:"check,omitempty"`
}

// TicTacToeData 井字棋数据
type TicTacToeData struct {
	Board Grid[string]      `json:"board"`
	Marks map[string]string `json:"marks"`
}

// BluffData 吹牛卡牌数据
type BluffData struct {
	PlayerHands            map[string][]int `json:"playerHands,omitempty"`
	HandCounts             map[string]int   `json:"handCounts,omitempty"`
	CurrentTarget          int              `json:"currentTarget"`
	PlayedCards            *PlayedCards     `json:"playedCards,omitempty"`
	ChallengeWindow        bool             `json:"challengeWindow"`
	ChallengingPlayers     []string         `json:"challengingPlayers"`
	CurrentChallengeResult *ChallengeResult `json:"currentChallengeResult,omitempty"`
}

// PlayedCards 待结算的出牌
type PlayedCards struct {
	PlayerID     string `json:"playerId"`
	Cards        []int  `json:"cards,omitempty"`
	ClaimedCount int    `json:"claimedCount"`
	ActualTruth  *bool  `json:"actualTruth,omitempty"`
	Revealed     bool   `json:"revealed"`
}

// Truthful 出牌是否属实
func (p *PlayedCards) Truthful() bool {
	return p.ActualTruth != nil && *p.ActualTruth
}

// ChallengeResult 质疑结算结果
type ChallengeResult struct {
	PlayerID        string   `json:"playerId"`
	Challengers     []string `json:"challengers"`
	WasBluff        bool     `json:"wasBluff"`
	PenaltyPlayerID string   `json:"penaltyPlayerId,omitempty"`
	PenaltyCards    int      `json:"penaltyCards"`
}
