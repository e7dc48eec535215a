package board

import (
	"fmt"
)

// Disc is the state of a single square.
type Disc int8

const (
	Empty Disc = iota
	Black
	White
)

// String returns the lowercase name of the disc color.
func (d Disc) String() string {
	switch d {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "empty"
	}
}

// Opponent returns the opposing color.
func (d Disc) Opponent() Disc {
	switch d {
	case Black:
		return White
	case White:
		return Black
	default:
		return Empty
	}
}

// Position identifies a square on the board.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// directions covers the eight flip lines radiating from a placement.
var directions = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// Board is a square reversi board. The zero value is not usable; construct
// with New.
type Board struct {
	size  int
	cells [][]Disc
}

// DefaultSize is the standard reversi board width.
const DefaultSize = 8

// New creates a board of the given width with the four standard center discs
// placed. Width must be an even number of at least 4.
func New(size int) (*Board, error) {
	if size < 4 || size%2 != 0 {
		return nil, fmt.Errorf("invalid board size %d: must be even and >= 4", size)
	}
	cells := make([][]Disc, size)
	for i := range cells {
		cells[i] = make([]Disc, size)
	}
	mid := size / 2
	cells[mid-1][mid-1] = White
	cells[mid-1][mid] = Black
	cells[mid][mid-1] = Black
	cells[mid][mid] = White
	return &Board{size: size, cells: cells}, nil
}

// Size returns the board width.
func (b *Board) Size() int {
	return b.size
}

// At returns the disc at the given position, or Empty if out of range.
func (b *Board) At(p Position) Disc {
	if !b.inBounds(p) {
		return Empty
	}
	return b.cells[p.Row][p.Col]
}

func (b *Board) inBounds(p Position) bool {
	return p.Row >= 0 && p.Row < b.size && p.Col >= 0 && p.Col < b.size
}

// flipsInDirection returns the run of opposing discs that a placement at p
// would capture along one direction, or nil if the line is not bracketed.
func (b *Board) flipsInDirection(d Disc, p Position, dr, dc int) []Position {
	var run []Position
	r, c := p.Row+dr, p.Col+dc
	for r >= 0 && r < b.size && c >= 0 && c < b.size {
		switch b.cells[r][c] {
		case d.Opponent():
			run = append(run, Position{Row: r, Col: c})
		case d:
			if len(run) > 0 {
				return run
			}
			return nil
		default:
			return nil
		}
		r += dr
		c += dc
	}
	return nil
}

// IsLegal reports whether side d may place a disc at p.
func (b *Board) IsLegal(d Disc, p Position) bool {
	if d == Empty || !b.inBounds(p) || b.cells[p.Row][p.Col] != Empty {
		return false
	}
	for _, dir := range directions {
		if len(b.flipsInDirection(d, p, dir[0], dir[1])) > 0 {
			return true
		}
	}
	return false
}

// LegalMoves lists every square where side d may place a disc, in row-major
// order.
func (b *Board) LegalMoves(d Disc) []Position {
	var moves []Position
	for r := 0; r < b.size; r++ {
		for c := 0; c < b.size; c++ {
			p := Position{Row: r, Col: c}
			if b.IsLegal(d, p) {
				moves = append(moves, p)
			}
		}
	}
	return moves
}

// HasLegalMove reports whether side d has at least one legal placement.
func (b *Board) HasLegalMove(d Disc) bool {
	for r := 0; r < b.size; r++ {
		for c := 0; c < b.size; c++ {
			if b.IsLegal(d, Position{Row: r, Col: c}) {
				return true
			}
		}
	}
	return false
}

// Apply places a disc for side d at p and flips every captured run. It
// returns the number of discs flipped.
func (b *Board) Apply(d Disc, p Position) (int, error) {
	if !b.IsLegal(d, p) {
		return 0, fmt.Errorf("illegal placement for %s at (%d,%d)", d, p.Row, p.Col)
	}
	flipped := 0
	for _, dir := range directions {
		run := b.flipsInDirection(d, p, dir[0], dir[1])
		for _, q := range run {
			b.cells[q.Row][q.Col] = d
		}
		flipped += len(run)
	}
	b.cells[p.Row][p.Col] = d
	return flipped, nil
}

// Counts returns the number of black and white discs on the board.
func (b *Board) Counts() (black, white int) {
	for r := 0; r < b.size; r++ {
		for c := 0; c < b.size; c++ {
			switch b.cells[r][c] {
			case Black:
				black++
			case White:
				white++
			}
		}
	}
	return black, white
}

// GameOver reports whether neither side has a legal placement.
func (b *Board) GameOver() bool {
	return !b.HasLegalMove(Black) && !b.HasLegalMove(White)
}

// IsCorner reports whether p is one of the four corner squares of a board of
// the given width.
func IsCorner(p Position, size int) bool {
	last := size - 1
	return (p.Row == 0 || p.Row == last) && (p.Col == 0 || p.Col == last)
}

// IsEdge reports whether p lies on the outer ring of a board of the given
// width. Corners count as edge squares; callers that want corner priority
// check IsCorner first.
func IsEdge(p Position, size int) bool {
	last := size - 1
	return p.Row == 0 || p.Row == last || p.Col == 0 || p.Col == last
}
