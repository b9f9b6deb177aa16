package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/bingo-backend/internal/apperror"
	"github.com/rocketscienceinc/bingo-backend/internal/entity"
)

// BoardTemplateRepository stores the immutable board templates sessions are
// created from.
type BoardTemplateRepository interface {
	CreateOrUpdate(ctx context.Context, id string, board *entity.Board) error
	GetByID(ctx context.Context, id string) (*entity.Board, error)
}

type dbTemplate struct {
	client *redis.Client
}

func NewBoardTemplateRepository(client *redis.Client) BoardTemplateRepository {
	return &dbTemplate{
		client: client,
	}
}

func (that *dbTemplate) CreateOrUpdate(ctx context.Context, id string, board *entity.Board) error {
	boardJSON, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("could not marshal board template: %w", err)
	}

	templateKey := "template:" + id
	err = that.client.Set(ctx, templateKey, boardJSON, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set board template: %w", err)
	}

	return nil
}

func (that *dbTemplate) GetByID(ctx context.Context, id string) (*entity.Board, error) {
	templateKey := "template:" + id

	response, err := that.client.Get(ctx, templateKey).Result()

	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrTemplateNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get board template by ID: %w", err)
	}

	var board entity.Board
	if err = json.Unmarshal([]byte(response), &board); err != nil {
		return nil, fmt.Errorf("failed to unmarshal board template: %w", err)
	}

	return &board, nil
}

// SeedDefaultTemplates - makes sure the stock square templates exist so a
// fresh deployment can host sessions immediately.
func SeedDefaultTemplates(ctx context.Context, repo BoardTemplateRepository) error {
	for size := entity.MinBoardSize; size <= entity.MaxBoardSize; size++ {
		board, err := entity.NewBoard(size)
		if err != nil {
			return fmt.Errorf("failed to build default template: %w", err)
		}

		id := fmt.Sprintf("square-%d", size)
		if err = repo.CreateOrUpdate(ctx, id, board); err != nil {
			return fmt.Errorf("failed to seed template %s: %w", id, err)
		}
	}

	return nil
}
