package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/bingo-backend/internal/apperror"
)

var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNewBoard(t *testing.T) {
	t.Run("Creates boards for all supported sizes", func(t *testing.T) {
		for size := MinBoardSize; size <= MaxBoardSize; size++ {
			// When: a board of a supported size is created
			board, err := NewBoard(size)

			// Then: it has size*size empty cells
			require.NoError(t, err)
			require.Len(t, board.Cells, size*size)
		}
	})

	t.Run("Rejects out-of-range sizes", func(t *testing.T) {
		for _, size := range []int{-1, 0, 2, 7, 100} {
			_, err := NewBoard(size)
			require.ErrorIs(t, err, ErrInvalidBoardSize)
		}
	})
}

func TestBoard_ApplyMark(t *testing.T) {
	t.Run("Marks an empty cell", func(t *testing.T) {
		// Given: an empty 5x5 board
		board, err := NewBoard(5)
		require.NoError(t, err)

		// When: participant p1 marks cell 12
		delta, err := board.ApplyMark(12, "p1", "red", MarkModeExclusive, testTime)

		// Then: the cell is held by p1 with version 1
		require.NoError(t, err)
		assert.True(t, delta.Changed)
		assert.Equal(t, []string{"p1"}, delta.Cell.MarkedBy)
		assert.Equal(t, "red", delta.Cell.ColorHint)
		assert.Equal(t, int64(1), delta.Cell.Version)
		assert.Equal(t, "p1", delta.Cell.LastModifiedBy)
		assert.Equal(t, testTime, delta.Cell.LastModifiedAt)
	})

	t.Run("Marking own cell is idempotent for all sizes", func(t *testing.T) {
		for size := MinBoardSize; size <= MaxBoardSize; size++ {
			// Given: a board where p1 has marked every cell once
			board, err := NewBoard(size)
			require.NoError(t, err)

			for position := range board.Cells {
				_, err = board.ApplyMark(position, "p1", "red", MarkModeExclusive, testTime)
				require.NoError(t, err)
			}

			// When: p1 marks every cell a second time
			for position := range board.Cells {
				delta, markErr := board.ApplyMark(position, "p1", "blue", MarkModeExclusive, testTime.Add(time.Minute))
				require.NoError(t, markErr)

				// Then: nothing changes, versions stay at 1
				assert.False(t, delta.Changed)
				assert.Equal(t, int64(1), delta.Cell.Version)
				assert.Equal(t, []string{"p1"}, delta.Cell.MarkedBy)
				assert.Equal(t, "red", delta.Cell.ColorHint)
			}
		}
	})

	t.Run("Exclusive mode replaces the holder", func(t *testing.T) {
		// Given: cell 0 held by p1
		board, err := NewBoard(3)
		require.NoError(t, err)

		_, err = board.ApplyMark(0, "p1", "red", MarkModeExclusive, testTime)
		require.NoError(t, err)

		// When: p2 marks the same cell in exclusive mode
		delta, err := board.ApplyMark(0, "p2", "blue", MarkModeExclusive, testTime)

		// Then: p2 takes the cell over and the version advances
		require.NoError(t, err)
		assert.True(t, delta.Changed)
		assert.Equal(t, []string{"p2"}, delta.Cell.MarkedBy)
		assert.Equal(t, int64(2), delta.Cell.Version)
	})

	t.Run("Shared mode adds the holder", func(t *testing.T) {
		// Given: cell 0 held by p1
		board, err := NewBoard(3)
		require.NoError(t, err)

		_, err = board.ApplyMark(0, "p1", "red", MarkModeShared, testTime)
		require.NoError(t, err)

		// When: p2 marks the same cell in shared mode
		delta, err := board.ApplyMark(0, "p2", "blue", MarkModeShared, testTime)

		// Then: both participants hold the cell
		require.NoError(t, err)
		assert.Equal(t, []string{"p1", "p2"}, delta.Cell.MarkedBy)
	})

	t.Run("Rejects out-of-range positions", func(t *testing.T) {
		board, err := NewBoard(4)
		require.NoError(t, err)

		for _, position := range []int{-1, 16, 99} {
			_, err = board.ApplyMark(position, "p1", "red", MarkModeExclusive, testTime)
			require.ErrorIs(t, err, apperror.ErrInvalidPosition)
		}
	})
}

func TestBoard_ApplyUnmark(t *testing.T) {
	t.Run("Removes the participant's mark", func(t *testing.T) {
		// Given: cell 3 held by p1 and p2 in shared mode
		board, err := NewBoard(3)
		require.NoError(t, err)

		_, err = board.ApplyMark(3, "p1", "red", MarkModeShared, testTime)
		require.NoError(t, err)
		_, err = board.ApplyMark(3, "p2", "blue", MarkModeShared, testTime)
		require.NoError(t, err)

		// When: p1 unmarks the cell
		delta, err := board.ApplyUnmark(3, "p1", testTime)

		// Then: only p2 remains and the version advances
		require.NoError(t, err)
		assert.True(t, delta.Changed)
		assert.Equal(t, []string{"p2"}, delta.Cell.MarkedBy)
		assert.Equal(t, int64(3), delta.Cell.Version)
	})

	t.Run("Unmarking an unheld cell is a no-op", func(t *testing.T) {
		board, err := NewBoard(3)
		require.NoError(t, err)

		// When: p1 unmarks a cell nobody holds
		delta, err := board.ApplyUnmark(0, "p1", testTime)

		// Then: nothing changes and the version stays at zero
		require.NoError(t, err)
		assert.False(t, delta.Changed)
		assert.Equal(t, int64(0), delta.Cell.Version)
		assert.Empty(t, delta.Cell.MarkedBy)
	})

	t.Run("Unmarking the last holder empties the cell", func(t *testing.T) {
		board, err := NewBoard(3)
		require.NoError(t, err)

		_, err = board.ApplyMark(4, "p1", "red", MarkModeExclusive, testTime)
		require.NoError(t, err)

		delta, err := board.ApplyUnmark(4, "p1", testTime)
		require.NoError(t, err)
		assert.Empty(t, delta.Cell.MarkedBy)
	})
}

func TestBoard_Snapshot(t *testing.T) {
	// Given: a board with one marked cell
	board, err := NewBoard(3)
	require.NoError(t, err)

	_, err = board.ApplyMark(0, "p1", "red", MarkModeShared, testTime)
	require.NoError(t, err)

	// When: a snapshot is taken and the live board keeps mutating
	snapshot := board.Snapshot()

	_, err = board.ApplyMark(0, "p2", "blue", MarkModeShared, testTime)
	require.NoError(t, err)
	_, err = board.ApplyMark(1, "p1", "red", MarkModeShared, testTime)
	require.NoError(t, err)

	// Then: the snapshot is unaffected
	assert.Equal(t, []string{"p1"}, snapshot.Cells[0].MarkedBy)
	assert.Empty(t, snapshot.Cells[1].MarkedBy)
}
