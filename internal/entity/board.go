package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/rocketscienceinc/bingo-backend/internal/apperror"
)

const (
	MinBoardSize = 3
	MaxBoardSize = 6
)

// Mark modes control what happens when a second participant marks a cell
// that is already held by someone else.
const (
	MarkModeExclusive = "exclusive"
	MarkModeShared    = "shared"
)

var ErrInvalidBoardSize = errors.New("board size must be between 3 and 6")

// Cell is one position on the board. MarkedBy keeps participant IDs in the
// order they marked the cell; ColorHint is the last marker's display color
// and is never authoritative.
type Cell struct {
	MarkedBy       []string  `json:"marked_by,omitempty"`
	ColorHint      string    `json:"color_hint,omitempty"`
	Version        int64     `json:"version"`
	LastModifiedBy string    `json:"last_modified_by,omitempty"`
	LastModifiedAt time.Time `json:"last_modified_at,omitempty"`
}

// MarkedByParticipant - reports whether the participant holds this cell.
func (that *Cell) MarkedByParticipant(participantID string) bool {
	for _, id := range that.MarkedBy {
		if id == participantID {
			return true
		}
	}
	return false
}

// Board is a size x size grid, positions numbered row-major 0..size*size-1.
type Board struct {
	Size  int    `json:"size"`
	Cells []Cell `json:"cells"`
}

// NewBoard - creates an empty board of the given size.
func NewBoard(size int) (*Board, error) {
	if size < MinBoardSize || size > MaxBoardSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBoardSize, size)
	}

	return &Board{
		Size:  size,
		Cells: make([]Cell, size*size),
	}, nil
}

// CellDelta describes the outcome of a single board mutation. Changed is
// false when the board was already in the requested state; such no-ops do
// not touch the cell version.
type CellDelta struct {
	Position int   `json:"position"`
	Changed  bool  `json:"changed"`
	Cell     *Cell `json:"cell,omitempty"`
}

// ApplyMark - marks a cell for the participant. Marking a cell the
// participant already holds is a no-op. In exclusive mode the participant
// takes the cell over; in shared mode it is added to the holders.
func (that *Board) ApplyMark(position int, participantID, color, markMode string, now time.Time) (*CellDelta, error) {
	if err := that.checkPosition(position); err != nil {
		return nil, err
	}

	cell := &that.Cells[position]

	if cell.MarkedByParticipant(participantID) {
		return &CellDelta{Position: position, Changed: false, Cell: cell.clone()}, nil
	}

	if markMode == MarkModeShared {
		cell.MarkedBy = append(cell.MarkedBy, participantID)
	} else {
		cell.MarkedBy = []string{participantID}
	}

	cell.ColorHint = color
	cell.touch(participantID, now)

	return &CellDelta{Position: position, Changed: true, Cell: cell.clone()}, nil
}

// ApplyUnmark - removes the participant's mark from a cell. Unmarking a cell
// the participant does not hold is a no-op.
func (that *Board) ApplyUnmark(position int, participantID string, now time.Time) (*CellDelta, error) {
	if err := that.checkPosition(position); err != nil {
		return nil, err
	}

	cell := &that.Cells[position]

	if !cell.MarkedByParticipant(participantID) {
		return &CellDelta{Position: position, Changed: false, Cell: cell.clone()}, nil
	}

	holders := make([]string, 0, len(cell.MarkedBy))
	for _, id := range cell.MarkedBy {
		if id != participantID {
			holders = append(holders, id)
		}
	}
	if len(holders) == 0 {
		holders = nil
	}

	cell.MarkedBy = holders
	cell.touch(participantID, now)

	return &CellDelta{Position: position, Changed: true, Cell: cell.clone()}, nil
}

// Snapshot - returns a deep copy safe to hand to readers while the live
// board keeps mutating.
func (that *Board) Snapshot() *Board {
	cells := make([]Cell, len(that.Cells))
	for i := range that.Cells {
		cells[i] = *that.Cells[i].clone()
	}

	return &Board{Size: that.Size, Cells: cells}
}

func (that *Board) checkPosition(position int) error {
	if position < 0 || position >= len(that.Cells) {
		return fmt.Errorf("%w: position %d on a %dx%d board", apperror.ErrInvalidPosition, position, that.Size, that.Size)
	}
	return nil
}

func (that *Cell) touch(participantID string, now time.Time) {
	that.Version++
	that.LastModifiedBy = participantID
	that.LastModifiedAt = now
}

func (that *Cell) clone() *Cell {
	clone := *that
	if that.MarkedBy != nil {
		clone.MarkedBy = append([]string(nil), that.MarkedBy...)
	}
	return &clone
}
