package game

import (
	"encoding/json"
	"slices"
	"time"
)

// GameType 游戏类型
type GameType string

const (
	GameTypeNumberGuess GameType = "number_guess"
	GameTypeOddEven     GameType = "odd_even"
	GameTypeTicTacToe   GameType = "tic_tac_toe"
	GameTypeChess       GameType = "chess"
	GameTypeBluffCard   GameType = "bluff_card"
)

// Category 游戏类别
type Category string

const (
	CategoryRound Category = "round" // 同时选择
	CategoryTurn  Category = "turn"  // 轮流行动
	CategoryBoard Category = "board" // 棋盘类，轮流行动的特化
)

// GameStatus 游戏状态
type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"
	StatusPlaying  GameStatus = "playing"
	StatusFinished GameStatus = "finished"
)

// RoundPhase 回合阶段
type RoundPhase string

const (
	PhaseWaitingForMoves RoundPhase = "waiting_for_moves"
	PhaseFinished        RoundPhase = "finished"
)

// EndReason 结束原因
type EndReason string

const (
	EndReasonCompleted     EndReason = "completed"
	EndReasonResign        EndReason = "resign"
	EndReasonKick          EndReason = "kick"
	EndReasonCheckmate     EndReason = "checkmate"
	EndReasonStalemate     EndReason = "stalemate"
	EndReasonFiftyMoveRule EndReason = "fifty_move_rule"
	EndReasonDraw          EndReason = "draw"
	EndReasonEmptyHand     EndReason = "empty_hand"
	EndReasonEnded         EndReason = "ended"
)

// Choice 回合制游戏中玩家的选择（规范化后的字符串）
type Choice string

// GameState 游戏状态快照，category 决定哪个载荷非空
type GameState struct {
	RoomID              string     `json:"roomId"`
	GameType            GameType   `json:"gameType"`
	Category            Category   `json:"category"`
	PlayerIDs           []string   `json:"playerIds"`
	GameStatus          GameStatus `json:"gameStatus"`
	DisconnectedPlayers []string   `json:"disconnectedPlayers"`
	Winners             []string   `json:"winners,omitempty"`
	EndReason           EndReason  `json:"endReason,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	LastUpdated         time.Time  `json:"lastUpdated"`

	Round *RoundData `json:"round,omitempty"`
	Turn  *TurnData  `json:"turn,omitempty"`
}

// RoundData 同时选择类游戏数据
type RoundData struct {
	CurrentRound  int               `json:"currentRound"`
	MaxRounds     int               `json:"maxRounds"`
	Phase         RoundPhase        `json:"phase"`
	PlayerScores  map[string]int    `json:"playerScores"`
	PlayerChoices map[string]Choice `json:"playerChoices"`
	RoundHistory  []RoundRecord     `json:"roundHistory"`
	RoundDeadline *time.Time        `json:"roundDeadline,omitempty"`
}

// RoundRecord 单回合结算记录
type RoundRecord struct {
	Round          int               `json:"round"`
	Answer         Choice            `json:"answer"`
	Choices        map[string]Choice `json:"choices"`
	CorrectPlayers []string          `json:"correctPlayers"`
	ResolvedAt     time.Time         `json:"resolvedAt"`
}

// TurnData 轮流行动类游戏数据
type TurnData struct {
	CurrentPlayer string    `json:"currentPlayer"`
	TurnCount     int       `json:"turnCount"`
	GameHistory   []Move    `json:"gameHistory"`
	KickVote      *KickVote `json:"kickVote,omitempty"`
	BoardSize     int       `json:"boardSize,omitempty"`

	Chess     *ChessData     `json:"chess,omitempty"`
	TicTacToe *TicTacToeData `json:"ticTacToe,omitempty"`
	Bluff     *BluffData     `json:"bluff,omitempty"`
}

// KickVote 踢人投票
type KickVote struct {
	TargetPlayerID string    `json:"targetPlayerId"`
	AgreeVotes     []string  `json:"agreeVotes"`
	DisagreeVotes  []string  `json:"disagreeVotes"`
	VoteStartTime  time.Time `json:"voteStartTime"`
	VoteEndTime    time.Time `json:"voteEndTime"`
}

// HasVoted 是否已投票
func (v *KickVote) HasVoted(userID string) bool {
	return slices.Contains(v.AgreeVotes, userID) || slices.Contains(v.DisagreeVotes, userID)
}

// Move 历史走子记录
type Move struct {
	PlayerID   string          `json:"playerId"`
	MoveNumber int             `json:"moveNumber"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// HasPlayer 是否为本局玩家
func (s *GameState) HasPlayer(userID string) bool {
	return slices.Contains(s.PlayerIDs, userID)
}

// IsDisconnected 玩家是否断线
func (s *GameState) IsDisconnected(userID string) bool {
	return slices.Contains(s.DisconnectedPlayers, userID)
}

// IsPlaying 是否进行中
func (s *GameState) IsPlaying() bool {
	return s.GameStatus == StatusPlaying
}

// ConnectedPlayers 在线玩家（保持座位顺序）
func (s *GameState) ConnectedPlayers() []string {
	out := make([]string, 0, len(s.PlayerIDs))
	for _, id := range s.PlayerIDs {
		if !s.IsDisconnected(id) {
			out = append(out, id)
		}
	}
	return out
}

// Clone 深拷贝状态，引擎在副本上修改，被拒绝的操作不会影响已存储的状态
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		panic("game: clone state: " + err.Error())
	}
	out := &GameState{}
	if err := json.Unmarshal(data, out); err != nil {
		panic("game: clone state: " + err.Error())
	}
	return out
}

// without 返回去掉某个元素后的新切片（始终非nil）
func without(list []string, id string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// insertSorted 以有序集合的方式插入
func insertSorted(list []string, id string) []string {
	if slices.Contains(list, id) {
		return list
	}
	out := append(slices.Clone(list), id)
	slices.Sort(out)
	return out
}
