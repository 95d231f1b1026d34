package game

import (
	apperrors "github.com/wfunc/party-game/internal/errors"
)

// Position 棋盘坐标
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Add 坐标平移
func (p Position) Add(dr, dc int) Position {
	return Position{Row: p.Row + dr, Col: p.Col + dc}
}

// Grid 固定大小的方形棋盘
type Grid[T any] struct {
	Size  int   `json:"size"`
	Cells [][]T `json:"cells"`
}

// NewGrid 创建空棋盘
func NewGrid[T any](size int) Grid[T] {
	cells := make([][]T, size)
	for i := range cells {
		cells[i] = make([]T, size)
	}
	return Grid[T]{Size: size, Cells: cells}
}

// InBounds 坐标是否在棋盘内
func (g Grid[T]) InBounds(p Position) bool {
	return p.Row >= 0 && p.Row < g.Size && p.Col >= 0 && p.Col < g.Size
}

// At 读取格子
func (g Grid[T]) At(p Position) T {
	return g.Cells[p.Row][p.Col]
}

// Set 写入格子
func (g *Grid[T]) Set(p Position, v T) {
	g.Cells[p.Row][p.Col] = v
}

// Clone 拷贝棋盘，格子按值复制
func (g Grid[T]) Clone() Grid[T] {
	out := Grid[T]{Size: g.Size, Cells: make([][]T, len(g.Cells))}
	for i, row := range g.Cells {
		out.Cells[i] = append([]T(nil), row...)
	}
	return out
}

// Each 按行优先遍历
func (g Grid[T]) Each(fn func(p Position, v T)) {
	for r := 0; r < g.Size; r++ {
		for c := 0; c < g.Size; c++ {
			fn(Position{Row: r, Col: c}, g.Cells[r][c])
		}
	}
}

// ValidatePosition 越界坐标返回无效走法
func ValidatePosition[T any](g Grid[T], positions ...Position) error {
	for _, p := range positions {
		if !g.InBounds(p) {
			return apperrors.Newf(apperrors.ErrInvalidMove, "坐标越界: (%d,%d)", p.Row, p.Col)
		}
	}
	return nil
}
