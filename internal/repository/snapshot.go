package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/bingo-backend/internal/apperror"
	"github.com/rocketscienceinc/bingo-backend/internal/entity"
)

// SessionSnapshotRepository checkpoints session state for crash recovery.
// Writes carry a TTL so abandoned sessions age out of storage on their own;
// the engine never blocks its serialization point on these calls.
type SessionSnapshotRepository interface {
	Save(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

type dbSnapshot struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionSnapshotRepository(client *redis.Client, ttl time.Duration) SessionSnapshotRepository {
	return &dbSnapshot{
		client: client,
		ttl:    ttl,
	}
}

func (that *dbSnapshot) Save(ctx context.Context, session *entity.Session) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	sessionKey := "session:" + session.ID
	err = that.client.Set(ctx, sessionKey, sessionJSON, that.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	return nil
}

func (that *dbSnapshot) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	sessionKey := "session:" + id

	response, err := that.client.Get(ctx, sessionKey).Result()

	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrSessionNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session by ID: %w", err)
	}

	var session entity.Session
	if err = json.Unmarshal([]byte(response), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (that *dbSnapshot) DeleteByID(ctx context.Context, id string) error {
	sessionKey := "session:" + id

	err := that.client.Del(ctx, sessionKey).Err()
	if err != nil {
		return fmt.Errorf("failed to delete session by ID: %w", err)
	}

	return nil
}
