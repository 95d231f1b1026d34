package chess

import (
	apperrors "github.com/wfunc/party-game/internal/errors"
	"github.com/wfunc/party-game/internal/game"
)

// Move 一步棋
type Move struct {
	From      game.Position  `json:"from"`
	To        game.Position  `json:"to"`
	Promotion game.PieceType `json:"promotion,omitempty"`
}

var promotions = []game.PieceType{game.Queen, game.Rook, game.Bishop, game.Knight}

func validPromotion(t game.PieceType) bool {
	for _, p := range promotions {
		if p == t {
			return true
		}
	}
	return false
}

func invalid(format string, args ...interface{}) error {
	return apperrors.Newf(apperrors.ErrInvalidMove, format, args...)
}

// isCastling 王在底线横走两格
func isCastling(piece game.Piece, m Move) bool {
	return piece.Type == game.King && m.From.Row == m.To.Row && abs(m.To.Col-m.From.Col) == 2
}

// Validate 校验 color 方的走法：坐标、棋子归属、目标格、几何规则、王车易位、自将过滤
func Validate(d *game.ChessData, color game.Color, m Move) error {
	b := d.Board
	if err := game.ValidatePosition(b, m.From, m.To); err != nil {
		return err
	}
	piece := b.At(m.From)
	if piece.IsEmpty() {
		return invalid("起点没有棋子: (%d,%d)", m.From.Row, m.From.Col)
	}
	if piece.Color != color {
		return invalid("不能移动对方的棋子")
	}
	if target := b.At(m.To); !target.IsEmpty() && target.Color == color {
		return invalid("目标格有己方棋子")
	}
	if m.Promotion != "" && !validPromotion(m.Promotion) {
		return invalid("无效的升变: %s", m.Promotion)
	}

	if isCastling(piece, m) {
		if err := validateCastling(d, color, m); err != nil {
			return err
		}
	} else if !geometryOK(b, m.From, m.To) {
		return invalid("%s 不能这样走", piece.Type)
	}

	next := b.Clone()
	movePieces(&next, m)
	if IsInCheck(next, color) {
		return invalid("走后己方王被将军")
	}
	return nil
}

// validateCastling 王和车未动、有易位权、中间无子、王不在被将军中且不经过或落在被攻击的格子
func validateCastling(d *game.ChessData, color game.Color, m Move) error {
	b := d.Board
	row := homeRow(color)
	if m.From != (game.Position{Row: row, Col: 4}) {
		return invalid("王不在初始位置")
	}
	kingSide := m.To.Col > m.From.Col
	if !hasRight(d.CastlingRights, color, kingSide) {
		return invalid("没有易位权")
	}

	rookCol, step := 0, -1
	if kingSide {
		rookCol, step = boardSize-1, 1
	}
	rook := b.At(game.Position{Row: row, Col: rookCol})
	if rook.Type != game.Rook || rook.Color != color || rook.HasMoved {
		return invalid("易位的车不在原位")
	}
	if !IsPathClear(b, m.From, game.Position{Row: row, Col: rookCol}) {
		return invalid("易位路径上有棋子")
	}

	opp := color.Opponent()
	for col := 4; col != m.To.Col+step; col += step {
		if IsSquareAttacked(b, game.Position{Row: row, Col: col}, opp) {
			return invalid("王在被将军中或经过被攻击的格子")
		}
	}
	return nil
}

func hasRight(r game.CastlingRights, color game.Color, kingSide bool) bool {
	switch {
	case color == game.White && kingSide:
		return r.WhiteKingSide
	case color == game.White:
		return r.WhiteQueenSide
	case kingSide:
		return r.BlackKingSide
	default:
		return r.BlackQueenSide
	}
}

// movePieces 只移动棋子（包括易位的车和升变），不更新计数和易位权
func movePieces(b *Board, m Move) {
	piece := b.At(m.From)
	if isCastling(piece, m) {
		rookFrom, rookTo := game.Position{Row: m.From.Row, Col: 0}, game.Position{Row: m.From.Row, Col: 3}
		if m.To.Col > m.From.Col {
			rookFrom, rookTo = game.Position{Row: m.From.Row, Col: boardSize - 1}, game.Position{Row: m.From.Row, Col: 5}
		}
		rook := b.At(rookFrom)
		rook.HasMoved = true
		b.Set(rookTo, rook)
		b.Set(rookFrom, game.Piece{})
	}

	piece.HasMoved = true
	if piece.Type == game.Pawn && m.To.Row == promotionRow(piece.Color) {
		piece.Type = m.Promotion
		if piece.Type == "" {
			piece.Type = game.Queen
		}
	}
	b.Set(m.To, piece)
	b.Set(m.From, game.Piece{})
}

// Apply 执行已校验的走法，更新易位权、五十步计数、回合数和将军标记
func Apply(d *game.ChessData, m Move) {
	b := d.Board
	piece := b.At(m.From)
	captured := !b.At(m.To).IsEmpty()

	movePieces(&d.Board, m)

	if piece.Type == game.Pawn || captured {
		d.HalfMoveClock = 0
	} else {
		d.HalfMoveClock++
	}
	if piece.Color == game.Black {
		d.FullMoveNumber++
	}

	updateRights(&d.CastlingRights, piece, m)

	d.Check = ""
	if opp := piece.Color.Opponent(); IsInCheck(d.Board, opp) {
		d.Check = opp
	}
}

// updateRights 王或车离开原位、车在原位被吃都会失去对应的易位权
func updateRights(r *game.CastlingRights, piece game.Piece, m Move) {
	if piece.Type == game.King {
		if piece.Color == game.White {
			r.WhiteKingSide, r.WhiteQueenSide = false, false
		} else {
			r.BlackKingSide, r.BlackQueenSide = false, false
		}
	}
	for _, p := range []game.Position{m.From, m.To} {
		switch p {
		case game.Position{Row: 7, Col: 0}:
			r.WhiteQueenSide = false
		case game.Position{Row: 7, Col: 7}:
			r.WhiteKingSide = false
		case game.Position{Row: 0, Col: 0}:
			r.BlackQueenSide = false
		case game.Position{Row: 0, Col: 7}:
			r.BlackKingSide = false
		}
	}
}

// LegalMoves 枚举 color 方全部合法走法，兵到底线按四种升变分别计
func LegalMoves(d *game.ChessData, color game.Color) []Move {
	var moves []Move
	d.Board.Each(func(from game.Position, piece game.Piece) {
		if piece.IsEmpty() || piece.Color != color {
			return
		}
		d.Board.Each(func(to game.Position, _ game.Piece) {
			m := Move{From: from, To: to}
			if Validate(d, color, m) != nil {
				return
			}
			if piece.Type == game.Pawn && to.Row == promotionRow(color) {
				for _, p := range promotions {
					moves = append(moves, Move{From: from, To: to, Promotion: p})
				}
				return
			}
			moves = append(moves, m)
		})
	})
	return moves
}

// HasLegalMove 是否至少有一步合法走法
func HasLegalMove(d *game.ChessData, color game.Color) bool {
	found := false
	d.Board.Each(func(from game.Position, piece game.Piece) {
		if found || piece.IsEmpty() || piece.Color != color {
			return
		}
		d.Board.Each(func(to game.Position, _ game.Piece) {
			if !found && Validate(d, color, Move{From: from, To: to}) == nil {
				found = true
			}
		})
	})
	return found
}
