package broadcast

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/bingo-backend/internal/apperror"
	"github.com/rocketscienceinc/bingo-backend/internal/entity"
)

const defaultRetention = 200

// sessionLog is the bounded append-only delta log for one session plus its
// live subscribers.
type sessionLog struct {
	deltas []entity.SessionDelta
	subs   map[chan entity.SessionDelta]struct{}
}

// oldestVersion - session version of the oldest retained delta, or 0 when
// nothing has been trimmed yet.
func (that *sessionLog) oldestVersion() int64 {
	if len(that.deltas) == 0 {
		return 0
	}
	return that.deltas[0].SessionVersion
}

// Broadcaster fans accepted deltas out to session subscribers. It holds no
// authoritative state: only a bounded replay window per session, in the
// exact order the concurrency controller produced the deltas.
type Broadcaster struct {
	logger    *slog.Logger
	retention int

	mu       sync.RWMutex
	sessions map[string]*sessionLog
}

// New - creates a broadcaster retaining up to retention deltas per session;
// retention <= 0 selects the default.
func New(logger *slog.Logger, retention int) *Broadcaster {
	if retention <= 0 {
		retention = defaultRetention
	}

	return &Broadcaster{
		logger:    logger.With("component", "broadcaster"),
		retention: retention,
		sessions:  make(map[string]*sessionLog),
	}
}

// Publish - appends the delta to the session log and pushes it to every
// connected subscriber. A subscriber whose buffer is full is dropped rather
// than allowed to stall the fan-out; it will reconnect and replay.
func (that *Broadcaster) Publish(delta entity.SessionDelta) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.sessions[delta.SessionID]
	if log == nil {
		log = &sessionLog{subs: make(map[chan entity.SessionDelta]struct{})}
		that.sessions[delta.SessionID] = log
	}

	log.deltas = append(log.deltas, delta)
	if len(log.deltas) > that.retention {
		log.deltas = log.deltas[len(log.deltas)-that.retention:]
	}

	for sub := range log.subs {
		select {
		case sub <- delta:
		default:
			delete(log.subs, sub)
			close(sub)
			that.logger.Warn("dropped slow subscriber", "sessionID", delta.SessionID)
		}
	}
}

// Subscribe - attaches a subscriber to the session's delta stream.
//
// sinceVersion is the last session version the subscriber observed (0 for a
// fresh subscriber). Retained deltas newer than sinceVersion are replayed
// first, then live deltas follow, all in serialization order. If
// sinceVersion predates the retention window the subscriber gets
// ErrResyncRequired and must fetch a full snapshot before resubscribing.
//
// Delivery is at-least-once; consumers apply deltas idempotently by
// SessionVersion. The returned cancel func detaches the subscriber and
// closes the channel.
func (that *Broadcaster) Subscribe(sessionID string, sinceVersion int64) (<-chan entity.SessionDelta, func(), error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.sessions[sessionID]
	if log == nil {
		log = &sessionLog{subs: make(map[chan entity.SessionDelta]struct{})}
		that.sessions[sessionID] = log
	}

	// sinceVersion must be no older than the delta just before the window:
	// anything earlier has been trimmed and cannot be replayed. An empty log
	// cannot vouch for any prior version either; a session restored from its
	// checkpoint starts with one, so a resuming subscriber has to take the
	// snapshot path instead of silently skipping everything it missed.
	if sinceVersion > 0 {
		if len(log.deltas) == 0 {
			return nil, nil, fmt.Errorf("%w: version %d predates the delta log", apperror.ErrResyncRequired, sinceVersion)
		}
		if oldest := log.oldestVersion(); sinceVersion < oldest-1 {
			return nil, nil, fmt.Errorf("%w: version %d predates retention window (oldest retained %d)",
				apperror.ErrResyncRequired, sinceVersion, oldest)
		}
	}

	// The buffer must absorb a full replay plus some live traffic, since
	// replay happens with the broadcaster lock held.
	sub := make(chan entity.SessionDelta, 2*that.retention)

	for _, delta := range log.deltas {
		if delta.SessionVersion > sinceVersion {
			sub <- delta
		}
	}

	log.subs[sub] = struct{}{}

	cancel := func() {
		that.mu.Lock()
		defer that.mu.Unlock()

		if current := that.sessions[sessionID]; current != nil {
			if _, ok := current.subs[sub]; ok {
				delete(current.subs, sub)
				close(sub)
			}
		}
	}

	return sub, cancel, nil
}

// Forget - drops the session's log and detaches its subscribers; called when
// a session is evicted.
func (that *Broadcaster) Forget(sessionID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	log := that.sessions[sessionID]
	if log == nil {
		return
	}

	for sub := range log.subs {
		close(sub)
	}

	delete(that.sessions, sessionID)
}
