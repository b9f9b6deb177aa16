package bingo

import (
	"fmt"
	"sort"

	"github.com/rocketscienceinc/bingo-backend/internal/entity"
)

// PatternKind enumerates the closed set of win patterns. Dispatch is over
// this tagged variant, never over raw strings.
type PatternKind int

const (
	KindHorizontal PatternKind = iota
	KindVertical
	KindDiagonalMain
	KindDiagonalAnti
	KindFourCorners
	KindXPattern
	KindPlusPattern
	KindFullHouse
)

// Pattern is one win pattern instance. Line carries the row or column index
// for horizontal and vertical patterns and is zero otherwise.
type Pattern struct {
	Kind PatternKind
	Line int
}

// Name - canonical pattern name, e.g. "horizontal(2)" or "fourCorners".
// Winning-pattern display order is the lexicographic order of these names.
func (that Pattern) Name() string {
	switch that.Kind {
	case KindHorizontal:
		return fmt.Sprintf("horizontal(%d)", that.Line)
	case KindVertical:
		return fmt.Sprintf("vertical(%d)", that.Line)
	case KindDiagonalMain:
		return "diagonal(main)"
	case KindDiagonalAnti:
		return "diagonal(anti)"
	case KindFourCorners:
		return "fourCorners"
	case KindXPattern:
		return "xPattern"
	case KindPlusPattern:
		return "plusPattern"
	case KindFullHouse:
		return "fullHouse"
	default:
		return "unknown"
	}
}

// Cells - the defining position set of the pattern on a size x size board.
// For plusPattern on even sizes the pivot row/column is size/2, rounding
// down; there is no centered plus on an even board so this is the documented
// policy.
func (that Pattern) Cells(size int) []int {
	switch that.Kind {
	case KindHorizontal:
		cells := make([]int, size)
		for i := range cells {
			cells[i] = that.Line*size + i
		}
		return cells
	case KindVertical:
		cells := make([]int, size)
		for i := range cells {
			cells[i] = i*size + that.Line
		}
		return cells
	case KindDiagonalMain:
		cells := make([]int, size)
		for i := range cells {
			cells[i] = i*size + i
		}
		return cells
	case KindDiagonalAnti:
		cells := make([]int, size)
		for i := range cells {
			cells[i] = i*size + (size - 1 - i)
		}
		return cells
	case KindFourCorners:
		return []int{0, size - 1, size * (size - 1), size*size - 1}
	case KindXPattern:
		return unionCells(Pattern{Kind: KindDiagonalMain}, Pattern{Kind: KindDiagonalAnti}, size)
	case KindPlusPattern:
		pivot := size / 2
		return unionCells(Pattern{Kind: KindHorizontal, Line: pivot}, Pattern{Kind: KindVertical, Line: pivot}, size)
	case KindFullHouse:
		cells := make([]int, size*size)
		for i := range cells {
			cells[i] = i
		}
		return cells
	default:
		return nil
	}
}

func unionCells(a, b Pattern, size int) []int {
	seen := make(map[int]bool, 2*size)
	cells := make([]int, 0, 2*size)
	for _, c := range append(a.Cells(size), b.Cells(size)...) {
		if !seen[c] {
			seen[c] = true
			cells = append(cells, c)
		}
	}
	sort.Ints(cells)
	return cells
}

// Evaluate - returns every pattern the participant currently satisfies,
// sorted by canonical name. A pattern is satisfied iff the participant holds
// every cell of its defining set.
//
// One pass over the board accumulates per-row, per-column, per-diagonal and
// per-family completion counts, so total cost is O(size^2) for all pattern
// families together.
func Evaluate(board *entity.Board, participantID string) []Pattern {
	size := board.Size
	pivot := size / 2

	rows := make([]int, size)
	cols := make([]int, size)

	var mainDiag, antiDiag, corners, xCells, plusCells, total int

	for position := range board.Cells {
		if !board.Cells[position].MarkedByParticipant(participantID) {
			continue
		}

		row, col := position/size, position%size

		rows[row]++
		cols[col]++
		total++

		onMain := row == col
		onAnti := col == size-1-row

		if onMain {
			mainDiag++
		}
		if onAnti {
			antiDiag++
		}
		if onMain || onAnti {
			xCells++
		}
		if row == pivot || col == pivot {
			plusCells++
		}
		if (row == 0 || row == size-1) && (col == 0 || col == size-1) {
			corners++
		}
	}

	var satisfied []Pattern

	for i := 0; i < size; i++ {
		if rows[i] == size {
			satisfied = append(satisfied, Pattern{Kind: KindHorizontal, Line: i})
		}
		if cols[i] == size {
			satisfied = append(satisfied, Pattern{Kind: KindVertical, Line: i})
		}
	}

	if mainDiag == size {
		satisfied = append(satisfied, Pattern{Kind: KindDiagonalMain})
	}
	if antiDiag == size {
		satisfied = append(satisfied, Pattern{Kind: KindDiagonalAnti})
	}
	if corners == 4 {
		satisfied = append(satisfied, Pattern{Kind: KindFourCorners})
	}

	// Both diagonals share the center cell on odd boards.
	xTarget := 2 * size
	if size%2 == 1 {
		xTarget--
	}
	if xCells == xTarget {
		satisfied = append(satisfied, Pattern{Kind: KindXPattern})
	}

	if plusCells == 2*size-1 {
		satisfied = append(satisfied, Pattern{Kind: KindPlusPattern})
	}

	if total == size*size {
		satisfied = append(satisfied, Pattern{Kind: KindFullHouse})
	}

	sort.Slice(satisfied, func(i, j int) bool {
		return satisfied[i].Name() < satisfied[j].Name()
	})

	return satisfied
}

// Names - canonical names of the given patterns, preserving order.
func Names(patterns []Pattern) []string {
	names := make([]string, len(patterns))
	for i, pattern := range patterns {
		names[i] = pattern.Name()
	}
	return names
}
