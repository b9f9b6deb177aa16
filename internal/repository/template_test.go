package repository

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/bingo-backend/internal/apperror"
	"github.com/rocketscienceinc/bingo-backend/internal/entity"
	"github.com/rocketscienceinc/bingo-backend/testing/suite"
)

func TestBoardTemplateRepository_CreateOrUpdate(t *testing.T) {
	ctx, st := suite.New(t)

	templateRepo := NewBoardTemplateRepository(st.Storage)

	// Given: a 5x5 board template
	board, err := entity.NewBoard(5)
	require.NoError(t, err)

	// When: CreateOrUpdate is called
	err = templateRepo.CreateOrUpdate(ctx, "square-5", board)

	// Then: no error should be returned
	require.NoError(t, err)
}

func TestBoardTemplateRepository_GetByID(t *testing.T) {
	t.Run("GetByID_Success", func(t *testing.T) {
		ctx, st := suite.New(t)

		templateRepo := NewBoardTemplateRepository(st.Storage)

		board, err := entity.NewBoard(4)
		require.NoError(t, err)

		err = templateRepo.CreateOrUpdate(ctx, "square-4", board)
		require.NoError(t, err)

		// When: GetByID is called with an existing ID
		retrieved, err := templateRepo.GetByID(ctx, "square-4")

		// Then: the retrieved template matches the saved one
		require.NoError(t, err)
		require.Equal(t, 4, retrieved.Size)
		require.Len(t, retrieved.Cells, 16)
	})

	t.Run("GetByID_NotFound", func(t *testing.T) {
		ctx, st := suite.New(t)

		templateRepo := NewBoardTemplateRepository(st.Storage)

		// When: GetByID is called with a missing ID
		_, err := templateRepo.GetByID(ctx, "no-such-template")

		// Then: a typed not-found error is returned
		require.ErrorIs(t, err, apperror.ErrTemplateNotFound)
	})
}

func TestSeedDefaultTemplates(t *testing.T) {
	ctx, st := suite.New(t)

	templateRepo := NewBoardTemplateRepository(st.Storage)

	// When: the stock templates are seeded
	err := SeedDefaultTemplates(ctx, templateRepo)
	require.NoError(t, err)

	// Then: every supported size is available
	for size := entity.MinBoardSize; size <= entity.MaxBoardSize; size++ {
		board, getErr := templateRepo.GetByID(ctx, boardRefForSize(size))
		require.NoError(t, getErr)
		assert.Equal(t, size, board.Size)
	}
}

func boardRefForSize(size int) string {
	return fmt.Sprintf("square-%d", size)
}
