// Package chess 国际象棋规则：走法校验、将军检测、将死与逼和判定。
//
// 支持王车易位：王与车均未移动且有易位权、中间无子、王不在被将军状态且不经过受攻击的格子。
// 升变默认为后，可在走法中指定。不支持吃过路兵，对应的斜走在几何校验中被拒绝。
package chess

import (
	"github.com/wfunc/party-game/internal/game"
)

const boardSize = 8

// Board 8x8 棋盘，第0行为黑方底线
type Board = game.Grid[game.Piece]

var backRank = [boardSize]game.PieceType{
	game.Rook, game.Knight, game.Bishop, game.Queen,
	game.King, game.Bishop, game.Knight, game.Rook,
}

// NewBoard 初始局面
func NewBoard() Board {
	b := game.NewGrid[game.Piece](boardSize)
	for col := 0; col < boardSize; col++ {
		b.Set(game.Position{Row: 0, Col: col}, game.Piece{Type: backRank[col], Color: game.Black})
		b.Set(game.Position{Row: 1, Col: col}, game.Piece{Type: game.Pawn, Color: game.Black})
		b.Set(game.Position{Row: 6, Col: col}, game.Piece{Type: game.Pawn, Color: game.White})
		b.Set(game.Position{Row: 7, Col: col}, game.Piece{Type: backRank[col], Color: game.White})
	}
	return b
}

// pawnDir 兵的前进方向
func pawnDir(c game.Color) int {
	if c == game.White {
		return -1
	}
	return 1
}

func pawnStartRow(c game.Color) int {
	if c == game.White {
		return 6
	}
	return 1
}

func promotionRow(c game.Color) int {
	if c == game.White {
		return 0
	}
	return boardSize - 1
}

func homeRow(c game.Color) int {
	if c == game.White {
		return boardSize - 1
	}
	return 0
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// IsPathClear 直线或斜线上 from 与 to 之间（不含两端）没有棋子
func IsPathClear(b Board, from, to game.Position) bool {
	dr, dc := sign(to.Row-from.Row), sign(to.Col-from.Col)
	for p := from.Add(dr, dc); p != to; p = p.Add(dr, dc) {
		if !b.InBounds(p) {
			return false
		}
		if !b.At(p).IsEmpty() {
			return false
		}
	}
	return true
}

// geometryOK 棋子走法的几何规则（不含王车易位和自将过滤）
func geometryOK(b Board, from, to game.Position) bool {
	piece := b.At(from)
	target := b.At(to)
	dr, dc := to.Row-from.Row, to.Col-from.Col
	if dr == 0 && dc == 0 {
		return false
	}

	switch piece.Type {
	case game.Pawn:
		dir := pawnDir(piece.Color)
		switch {
		case dc == 0 && dr == dir:
			return target.IsEmpty()
		case dc == 0 && dr == 2*dir && from.Row == pawnStartRow(piece.Color):
			return target.IsEmpty() && b.At(from.Add(dir, 0)).IsEmpty()
		case abs(dc) == 1 && dr == dir:
			return !target.IsEmpty() && target.Color != piece.Color
		}
		return false
	case game.Knight:
		return (abs(dr) == 1 && abs(dc) == 2) || (abs(dr) == 2 && abs(dc) == 1)
	case game.Bishop:
		return abs(dr) == abs(dc) && IsPathClear(b, from, to)
	case game.Rook:
		return (dr == 0) != (dc == 0) && IsPathClear(b, from, to)
	case game.Queen:
		straight := (dr == 0) != (dc == 0)
		diagonal := abs(dr) == abs(dc)
		return (straight || diagonal) && IsPathClear(b, from, to)
	case game.King:
		return abs(dr) <= 1 && abs(dc) <= 1
	}
	return false
}

// attacks from 上的棋子是否攻击 to（兵只看斜前方，不要求有棋子）
func attacks(b Board, from, to game.Position) bool {
	piece := b.At(from)
	if piece.Type == game.Pawn {
		return to.Row-from.Row == pawnDir(piece.Color) && abs(to.Col-from.Col) == 1
	}
	return geometryOK(b, from, to)
}

// IsSquareAttacked 某格是否被 by 方攻击
func IsSquareAttacked(b Board, sq game.Position, by game.Color) bool {
	attacked := false
	b.Each(func(p game.Position, piece game.Piece) {
		if attacked || piece.IsEmpty() || piece.Color != by {
			return
		}
		if attacks(b, p, sq) {
			attacked = true
		}
	})
	return attacked
}

// FindKing 查找王的位置
func FindKing(b Board, c game.Color) (game.Position, bool) {
	var pos game.Position
	found := false
	b.Each(func(p game.Position, piece game.Piece) {
		if !found && piece.Type == game.King && piece.Color == c {
			pos, found = p, true
		}
	})
	return pos, found
}

// IsInCheck c 方的王是否被将军
func IsInCheck(b Board, c game.Color) bool {
	king, ok := FindKing(b, c)
	if !ok {
		return false
	}
	return IsSquareAttacked(b, king, c.Opponent())
}
