package chess

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wfunc/party-game/internal/game"
)

// moveRequest 走法消息，支持坐标 {"from":{..},"to":{..}} 或 UCI {"uci":"e2e4"}
type moveRequest struct {
	Move
	UCI string `json:"uci,omitempty"`
}

// ParseMove 解析走法消息
func ParseMove(data json.RawMessage) (Move, error) {
	var req moveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return Move{}, fmt.Errorf("走法格式错误: %w", err)
	}
	if req.UCI != "" {
		return ParseUCI(req.UCI)
	}
	return req.Move, nil
}

// ParseUCI 解析 UCI 记法，如 e2e4、e7e8q
func ParseUCI(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("无效的UCI走法: %q", s)
	}
	from, err := parseSquare(s[0:2])
	if err != nil {
		return Move{}, err
	}
	to, err := parseSquare(s[2:4])
	if err != nil {
		return Move{}, err
	}
	m := Move{From: from, To: to}
	if len(s) == 5 {
		switch s[4] {
		case 'q':
			m.Promotion = game.Queen
		case 'r':
			m.Promotion = game.Rook
		case 'b':
			m.Promotion = game.Bishop
		case 'n':
			m.Promotion = game.Knight
		default:
			return Move{}, fmt.Errorf("无效的升变: %q", s)
		}
	}
	return m, nil
}

// parseSquare a1 对应第7行第0列
func parseSquare(s string) (game.Position, error) {
	file, rank := s[0], s[1]
	if file < 'a' || file > 'h' || rank < '1' || rank > '8' {
		return game.Position{}, fmt.Errorf("无效的格子: %q", s)
	}
	return game.Position{Row: boardSize - int(rank-'0'), Col: int(file - 'a')}, nil
}

// Square 坐标转格子名
func Square(p game.Position) string {
	return string(rune('a'+p.Col)) + strconv.Itoa(boardSize-p.Row)
}

// UCI 走法转 UCI 记法
func (m Move) UCI() string {
	s := Square(m.From) + Square(m.To)
	switch m.Promotion {
	case game.Queen:
		s += "q"
	case game.Rook:
		s += "r"
	case game.Bishop:
		s += "b"
	case game.Knight:
		s += "n"
	}
	return s
}

var fenLetters = map[game.PieceType]byte{
	game.Pawn: 'p', game.Knight: 'n', game.Bishop: 'b',
	game.Rook: 'r', game.Queen: 'q', game.King: 'k',
}

// Placement FEN 的棋子布局部分
func Placement(b Board) string {
	var sb strings.Builder
	for row := 0; row < boardSize; row++ {
		empty := 0
		for col := 0; col < boardSize; col++ {
			piece := b.At(game.Position{Row: row, Col: col})
			if piece.IsEmpty() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			c := fenLetters[piece.Type]
			if piece.Color == game.White {
				c -= 'a' - 'A'
			}
			sb.WriteByte(c)
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if row < boardSize-1 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}
