package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/bingo-backend/internal/apperror"
	"github.com/rocketscienceinc/bingo-backend/internal/bingo"
	"github.com/rocketscienceinc/bingo-backend/internal/entity"
	"github.com/rocketscienceinc/bingo-backend/internal/pkg"
)

type templateRepo interface {
	GetByID(ctx context.Context, id string) (*entity.Board, error)
}

type snapshotRepo interface {
	Save(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

type broadcaster interface {
	Publish(delta entity.SessionDelta)
}

// sessionLane is the per-session serialization point. Every mutation of the
// session or its board happens with lane.mu held; independent sessions never
// share a lane.
type sessionLane struct {
	mu      sync.Mutex
	session *entity.Session

	expiry          *time.Timer
	expiresAt       time.Time
	expiryRemaining time.Duration

	// Checkpoint writes are coalesced through a single writer per lane so a
	// slow older write can never land after a newer one.
	checkpointMu      sync.Mutex
	pendingCheckpoint *entity.Session
	checkpointBusy    bool
}

// Engine is the concurrency controller. It exclusively owns all live session
// state; every other component sees only immutable snapshots or deltas.
type Engine struct {
	logger      *slog.Logger
	templates   templateRepo
	snapshots   snapshotRepo
	broadcaster broadcaster
	now         func() time.Time

	mu    sync.RWMutex
	lanes map[string]*sessionLane
}

// NewEngine - creates the session engine. The clock argument supplies
// monotonic time for timestamps and expiry; pass nil for time.Now.
func NewEngine(logger *slog.Logger, templates templateRepo, snapshots snapshotRepo, b broadcaster, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		logger:      logger.With("component", "engine"),
		templates:   templates,
		snapshots:   snapshots,
		broadcaster: b,
		now:         clock,
		lanes:       make(map[string]*sessionLane),
	}
}

// CreateSession - loads the board template, creates a waiting session and
// seats the host.
func (that *Engine) CreateSession(ctx context.Context, hostID, boardRef, color, team string, settings entity.Settings) (*entity.Session, error) {
	template, err := that.templates.GetByID(ctx, boardRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load board template: %w", err)
	}

	now := that.now()
	session := entity.NewSession(pkg.GenerateSessionID(), boardRef, template.Snapshot(), settings, now)

	host, err := session.Join(hostID, entity.RoleHost, color, team, session.Settings.Password, now)
	if err != nil {
		return nil, fmt.Errorf("failed to seat host: %w", err)
	}

	lane := &sessionLane{session: session}

	that.mu.Lock()
	that.lanes[session.ID] = lane
	that.mu.Unlock()

	lane.mu.Lock()
	defer lane.mu.Unlock()

	that.publish(entity.SessionDelta{
		Type:           entity.DeltaParticipantJoined,
		SessionID:      session.ID,
		SessionVersion: session.Version,
		Participant:    host,
		OccurredAt:     now,
	})
	that.checkpoint(lane)

	return session.Snapshot(), nil
}

// Join - adds a participant to a session and auto-starts it when the
// threshold is reached.
func (that *Engine) Join(ctx context.Context, sessionID, participantID, role, color, team, password string) (*entity.Session, error) {
	lane, err := that.lane(sessionID)
	if err != nil {
		return nil, err
	}

	lane.mu.Lock()
	defer lane.mu.Unlock()

	session := lane.session
	now := that.now()

	participant, err := session.Join(participantID, role, color, team, password, now)
	if err != nil {
		return nil, fmt.Errorf("failed to join session %s: %w", sessionID, err)
	}

	that.publish(entity.SessionDelta{
		Type:           entity.DeltaParticipantJoined,
		SessionID:      sessionID,
		SessionVersion: session.Version,
		Participant:    participant,
		OccurredAt:     now,
	})

	if session.ShouldAutoStart() {
		if err = session.Start(now); err != nil {
			return nil, fmt.Errorf("failed to auto-start session %s: %w", sessionID, err)
		}
		that.afterStart(lane)

		that.publish(entity.SessionDelta{
			Type:           entity.DeltaStatusChanged,
			SessionID:      sessionID,
			SessionVersion: session.Version,
			Status:         session.Status,
			OccurredAt:     now,
		})

		that.logger.Info("session auto-started", "sessionID", sessionID)
	}

	that.checkpoint(lane)

	return session.Snapshot(), nil
}

// Leave - removes a participant; host succession is handled by the session.
func (that *Engine) Leave(ctx context.Context, sessionID, participantID string) (*entity.Session, error) {
	lane, err := that.lane(sessionID)
	if err != nil {
		return nil, err
	}

	lane.mu.Lock()
	defer lane.mu.Unlock()

	session := lane.session
	now := that.now()

	participant, err := session.Leave(participantID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to leave session %s: %w", sessionID, err)
	}

	that.publish(entity.SessionDelta{
		Type:           entity.DeltaParticipantLeft,
		SessionID:      sessionID,
		SessionVersion: session.Version,
		Participant:    participant,
		OccurredAt:     now,
	})
	that.checkpoint(lane)

	return session.Snapshot(), nil
}

// Approve - host whitelists a participant for a require-approval session.
func (that *Engine) Approve(ctx context.Context, sessionID, approverID, participantID string) error {
	lane, err := that.lane(sessionID)
	if err != nil {
		return err
	}

	lane.mu.Lock()
	defer lane.mu.Unlock()

	if err = lane.session.Approve(approverID, participantID); err != nil {
		return fmt.Errorf("failed to approve participant: %w", err)
	}

	that.checkpoint(lane)

	return nil
}

// Start - explicit host start of a waiting session.
func (that *Engine) Start(ctx context.Context, sessionID, actorID string) (*entity.Session, error) {
	return that.transition(sessionID, actorID, func(session *entity.Session, now time.Time) error {
		return session.Start(now)
	}, that.afterStart)
}

// Pause - host pauses an active session. The time limit stops running while
// the session is paused.
func (that *Engine) Pause(ctx context.Context, sessionID, actorID string) (*entity.Session, error) {
	return that.transition(sessionID, actorID, func(session *entity.Session, _ time.Time) error {
		return session.Pause()
	}, that.pauseExpiry)
}

// Resume - host resumes a paused session; the remaining time limit is
// re-armed.
func (that *Engine) Resume(ctx context.Context, sessionID, actorID string) (*entity.Session, error) {
	return that.transition(sessionID, actorID, func(session *entity.Session, _ time.Time) error {
		return session.Resume()
	}, that.resumeExpiry)
}

// Cancel - host terminates the session without a winner.
func (that *Engine) Cancel(ctx context.Context, sessionID, actorID string) (*entity.Session, error) {
	lane, err := that.lane(sessionID)
	if err != nil {
		return nil, err
	}

	lane.mu.Lock()
	defer lane.mu.Unlock()

	session := lane.session
	now := that.now()

	if err = session.Cancel(actorID, now); err != nil {
		return nil, fmt.Errorf("failed to cancel session %s: %w", sessionID, err)
	}

	lane.stopExpiry()

	that.publish(entity.SessionDelta{
		Type:           entity.DeltaStatusChanged,
		SessionID:      sessionID,
		SessionVersion: session.Version,
		Status:         session.Status,
		OccurredAt:     now,
	})
	that.checkpoint(lane)

	return session.Snapshot(), nil
}

// ExpireTimeLimit - time collaborator callback: forces an active session to
// complete with no winner. Expiry that races with a completed session is not
// an error.
func (that *Engine) ExpireTimeLimit(ctx context.Context, sessionID string) error {
	lane, err := that.lane(sessionID)
	if err != nil {
		return err
	}

	lane.mu.Lock()
	defer lane.mu.Unlock()

	session := lane.session

	if !session.IsActive() {
		return nil
	}

	now := that.now()
	if err = session.ExpireTimeLimit(now); err != nil {
		return fmt.Errorf("failed to expire session %s: %w", sessionID, err)
	}

	that.publish(entity.SessionDelta{
		Type:           entity.DeltaStatusChanged,
		SessionID:      sessionID,
		SessionVersion: session.Version,
		Status:         session.Status,
		OccurredAt:     now,
	})
	that.checkpoint(lane)

	that.logger.Info("session expired by time limit", "sessionID", sessionID)

	return nil
}

// ApplyMutation - the serialization path for board mutations.
//
// Malformed requests (bad action, out-of-range position, unknown session)
// are rejected before the lane is entered and never bump the session
// version. Everything else is decided strictly in lane order: the first
// accepted mutation that satisfies a pattern completes the session, and any
// later completion attempt loses with AlreadyCompleted.
func (that *Engine) ApplyMutation(ctx context.Context, req *entity.MutationRequest) (*entity.MutationResult, error) {
	if req.Action != entity.ActionMark && req.Action != entity.ActionUnmark {
		return reject(apperror.ErrInvalidAction, 0), fmt.Errorf("%w: %q", apperror.ErrInvalidAction, req.Action)
	}

	lane, err := that.lane(req.SessionID)
	if err != nil {
		return reject(err, 0), err
	}

	// Board dimensions are immutable for the life of the session, so the
	// bounds check is safe before entering the lane.
	if size := lane.session.Board.Size; req.CellPosition < 0 || req.CellPosition >= size*size {
		err = fmt.Errorf("%w: position %d", apperror.ErrInvalidPosition, req.CellPosition)
		return reject(err, 0), err
	}

	lane.mu.Lock()
	defer lane.mu.Unlock()

	session := lane.session

	if !session.CanMark(req.ParticipantID) {
		if _, ok := session.ActiveParticipant(req.ParticipantID); ok {
			err = fmt.Errorf("%w: spectators cannot mark", apperror.ErrPermissionDenied)
		} else {
			err = fmt.Errorf("%w: %s", apperror.ErrUnknownParticipant, req.ParticipantID)
		}
		return reject(err, session.Version), err
	}

	if !session.IsActive() {
		err = fmt.Errorf("%w: status %q", apperror.ErrSessionNotActive, session.Status)
		return reject(err, session.Version), err
	}

	now := that.now()

	var cellDelta *entity.CellDelta
	if req.Action == entity.ActionMark {
		color := ""
		if participant, ok := session.ActiveParticipant(req.ParticipantID); ok {
			color = participant.Color
		}
		cellDelta, err = session.Board.ApplyMark(req.CellPosition, req.ParticipantID, color, session.Settings.MarkMode, now)
	} else {
		cellDelta, err = session.Board.ApplyUnmark(req.CellPosition, req.ParticipantID, now)
	}
	if err != nil {
		return reject(err, session.Version), err
	}

	// A no-op still counts as an accepted mutation so clients converge on
	// the session version, but it cannot create a win.
	sessionVersion := session.Bump()

	result := &entity.MutationResult{
		Accepted:       true,
		NoOp:           !cellDelta.Changed,
		SessionVersion: sessionVersion,
		CellVersion:    cellDelta.Cell.Version,
	}

	that.publish(entity.SessionDelta{
		Type:           entity.DeltaCellChanged,
		SessionID:      req.SessionID,
		SessionVersion: sessionVersion,
		Cell:           cellDelta,
		OccurredAt:     now,
	})

	if cellDelta.Changed {
		if win := that.evaluateWin(lane, req.ParticipantID, now); win != nil {
			result.Win = win
			result.SessionVersion = session.Version
		}
	}

	if req.ClientObservedVersion > 0 && req.ClientObservedVersion < sessionVersion-1 {
		that.logger.Debug("stale client version on accepted mutation",
			"sessionID", req.SessionID,
			"participantID", req.ParticipantID,
			"observed", req.ClientObservedVersion,
			"current", sessionVersion)
	}

	that.checkpoint(lane)

	return result, nil
}

// Snapshot - immutable copy of the session for read-only callers.
func (that *Engine) Snapshot(sessionID string) (*entity.Session, error) {
	lane, err := that.lane(sessionID)
	if err != nil {
		return nil, err
	}

	lane.mu.Lock()
	defer lane.mu.Unlock()

	return lane.session.Snapshot(), nil
}

// RestoreSession - loads a checkpointed session back into a lane, used after
// an engine restart. An already-loaded session is returned as-is.
func (that *Engine) RestoreSession(ctx context.Context, sessionID string) (*entity.Session, error) {
	if lane, err := that.lane(sessionID); err == nil {
		lane.mu.Lock()
		defer lane.mu.Unlock()
		return lane.session.Snapshot(), nil
	}

	session, err := that.snapshots.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore session %s: %w", sessionID, err)
	}

	that.mu.Lock()
	if _, ok := that.lanes[sessionID]; !ok {
		that.lanes[sessionID] = &sessionLane{session: session}
	}
	lane := that.lanes[sessionID]
	that.mu.Unlock()

	lane.mu.Lock()
	defer lane.mu.Unlock()

	// A restored active session keeps its original deadline.
	if lane.session.IsActive() && lane.expiry == nil {
		that.resumeExpiry(lane)
	}

	return lane.session.Snapshot(), nil
}

// Evict - drops a session from memory and deletes its checkpoint. Called by
// the retention collaborator once all participants are gone past the window.
func (that *Engine) Evict(ctx context.Context, sessionID string) error {
	lane, err := that.lane(sessionID)
	if err != nil {
		return err
	}

	lane.mu.Lock()
	lane.stopExpiry()
	lane.mu.Unlock()

	that.mu.Lock()
	delete(that.lanes, sessionID)
	that.mu.Unlock()

	if err = that.snapshots.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session checkpoint: %w", err)
	}

	return nil
}

// evaluateWin - runs win detection for the acting participant only and
// completes the session on the first satisfied pattern. Called with the lane
// held, so ties between racing participants are settled purely by lane order.
func (that *Engine) evaluateWin(lane *sessionLane, participantID string, now time.Time) *entity.WinOutcome {
	session := lane.session

	patterns := bingo.Evaluate(session.Board, participantID)
	if len(patterns) == 0 {
		return nil
	}

	first := patterns[0]
	win := &entity.WinOutcome{
		WinnerID:    participantID,
		Pattern:     first.Name(),
		Cells:       first.Cells(session.Board.Size),
		AllPatterns: bingo.Names(patterns),
	}

	if err := session.Complete(win.WinnerID, win.Pattern, win.Cells, win.AllPatterns, now); err != nil {
		that.logger.Error("failed to complete session on win", "sessionID", session.ID, "error", err)
		return nil
	}

	lane.stopExpiry()

	that.publish(entity.SessionDelta{
		Type:           entity.DeltaSessionWon,
		SessionID:      session.ID,
		SessionVersion: session.Version,
		Status:         session.Status,
		Win:            win,
		OccurredAt:     now,
	})

	that.logger.Info("session won", "sessionID", session.ID, "winner", participantID, "pattern", win.Pattern)

	return win
}

// transition - shared path for host-driven status changes. after runs with
// the lane held once the change succeeded, for expiry timer bookkeeping.
func (that *Engine) transition(sessionID, actorID string, change func(*entity.Session, time.Time) error, after func(*sessionLane)) (*entity.Session, error) {
	lane, err := that.lane(sessionID)
	if err != nil {
		return nil, err
	}

	lane.mu.Lock()
	defer lane.mu.Unlock()

	session := lane.session

	actor, ok := session.ActiveParticipant(actorID)
	if !ok || actor.Role != entity.RoleHost {
		return nil, fmt.Errorf("%w: only the host can change session status", apperror.ErrPermissionDenied)
	}

	now := that.now()
	if err = change(session, now); err != nil {
		return nil, fmt.Errorf("failed to change status of session %s: %w", sessionID, err)
	}

	if after != nil {
		after(lane)
	}

	that.publish(entity.SessionDelta{
		Type:           entity.DeltaStatusChanged,
		SessionID:      sessionID,
		SessionVersion: session.Version,
		Status:         session.Status,
		OccurredAt:     now,
	})
	that.checkpoint(lane)

	return session.Snapshot(), nil
}

// afterStart - arms the full time-limit expiry timer if the session has one.
// Called with the lane held.
func (that *Engine) afterStart(lane *sessionLane) {
	session := lane.session
	if session.Settings.TimeLimitSeconds == nil {
		return
	}

	that.armExpiry(lane, time.Duration(*session.Settings.TimeLimitSeconds)*time.Second)
}

// pauseExpiry - stops the timer and records how much of the limit is left so
// paused time does not count against the session. Called with the lane held.
func (that *Engine) pauseExpiry(lane *sessionLane) {
	if lane.expiry == nil {
		return
	}

	lane.stopExpiry()
	lane.expiryRemaining = lane.expiresAt.Sub(that.now())
}

// resumeExpiry - re-arms the timer for the remaining limit. A lane with no
// recorded remainder, as after a restore from checkpoint, falls back to the
// deadline implied by the recorded start time. Called with the lane held.
func (that *Engine) resumeExpiry(lane *sessionLane) {
	session := lane.session
	if session.Settings.TimeLimitSeconds == nil {
		return
	}

	limit := time.Duration(*session.Settings.TimeLimitSeconds) * time.Second

	remaining := lane.expiryRemaining
	if remaining == 0 {
		remaining = session.StartedAt.Add(limit).Sub(that.now())
	}
	lane.expiryRemaining = 0

	that.armExpiry(lane, remaining)
}

// armExpiry - schedules forced completion after d; a non-positive d fires
// immediately. Called with the lane held.
func (that *Engine) armExpiry(lane *sessionLane, d time.Duration) {
	sessionID := lane.session.ID

	lane.stopExpiry()
	lane.expiresAt = that.now().Add(d)
	lane.expiry = time.AfterFunc(d, func() {
		if err := that.ExpireTimeLimit(context.Background(), sessionID); err != nil {
			that.logger.Error("failed to expire session", "sessionID", sessionID, "error", err)
		}
	})
}

// publish - hands a delta to the broadcaster. Called with the lane held so
// deltas leave in serialization order.
func (that *Engine) publish(delta entity.SessionDelta) {
	if that.broadcaster != nil {
		that.broadcaster.Publish(delta)
	}
}

// checkpoint - fire-and-forget durability write; the serialization point
// never blocks on persistence. Called with the lane held. Writes for one
// session are funneled through a single goroutine that always persists the
// newest pending snapshot, so an older write can never overwrite a newer
// checkpoint. Intermediate snapshots may be skipped; the latest never is.
func (that *Engine) checkpoint(lane *sessionLane) {
	if that.snapshots == nil {
		return
	}

	snapshot := lane.session.Snapshot()

	lane.checkpointMu.Lock()
	lane.pendingCheckpoint = snapshot
	if lane.checkpointBusy {
		lane.checkpointMu.Unlock()
		return
	}
	lane.checkpointBusy = true
	lane.checkpointMu.Unlock()

	go that.drainCheckpoints(lane)
}

func (that *Engine) drainCheckpoints(lane *sessionLane) {
	for {
		lane.checkpointMu.Lock()
		snapshot := lane.pendingCheckpoint
		lane.pendingCheckpoint = nil
		if snapshot == nil {
			lane.checkpointBusy = false
			lane.checkpointMu.Unlock()
			return
		}
		lane.checkpointMu.Unlock()

		if err := that.snapshots.Save(context.Background(), snapshot); err != nil {
			that.logger.Error("failed to checkpoint session", "sessionID", snapshot.ID, "error", err)
		}
	}
}

func (that *Engine) lane(sessionID string) (*sessionLane, error) {
	that.mu.RLock()
	lane, ok := that.lanes[sessionID]
	that.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", apperror.ErrSessionNotFound, sessionID)
	}

	return lane, nil
}

func (that *sessionLane) stopExpiry() {
	if that.expiry != nil {
		that.expiry.Stop()
		that.expiry = nil
	}
}

func reject(err error, sessionVersion int64) *entity.MutationResult {
	return &entity.MutationResult{
		Accepted:       false,
		Reason:         apperror.Reason(err),
		SessionVersion: sessionVersion,
	}
}
