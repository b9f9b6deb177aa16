package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/bingo-backend/internal/entity"
)

type sessionEngine interface {
	CreateSession(ctx context.Context, hostID, boardRef, color, team string, settings entity.Settings) (*entity.Session, error)
	Join(ctx context.Context, sessionID, participantID, role, color, team, password string) (*entity.Session, error)
	Leave(ctx context.Context, sessionID, participantID string) (*entity.Session, error)
	Approve(ctx context.Context, sessionID, approverID, participantID string) error
	Start(ctx context.Context, sessionID, actorID string) (*entity.Session, error)
	Pause(ctx context.Context, sessionID, actorID string) (*entity.Session, error)
	Resume(ctx context.Context, sessionID, actorID string) (*entity.Session, error)
	Cancel(ctx context.Context, sessionID, actorID string) (*entity.Session, error)
	ApplyMutation(ctx context.Context, req *entity.MutationRequest) (*entity.MutationResult, error)
}

type deltaStream interface {
	Subscribe(sessionID string, sinceVersion int64) (<-chan entity.SessionDelta, func(), error)
}

// client wraps one WebSocket connection. gorilla/websocket permits a single
// concurrent writer, so every send goes through the client's write mutex.
type client struct {
	conn *websocket.Conn

	writeMu       sync.Mutex
	participantID string

	cancelsMu sync.Mutex
	cancels   []func()
}

func (that *client) send(action string, payload Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if err = that.conn.WriteJSON(Message{Action: action, Payload: raw}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *client) addCancel(cancel func()) {
	that.cancelsMu.Lock()
	that.cancels = append(that.cancels, cancel)
	that.cancelsMu.Unlock()
}

func (that *client) cancelSubscriptions() {
	that.cancelsMu.Lock()
	cancels := that.cancels
	that.cancels = nil
	that.cancelsMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

type Server struct {
	logger *slog.Logger
	engine sessionEngine
	stream deltaStream

	upgrader websocket.Upgrader

	handlers map[string]func(ctx context.Context, conn *client, message *Message) error
}

func New(logger *slog.Logger, engine sessionEngine, stream deltaStream) *Server {
	server := &Server{
		logger: logger.With("component", "websocket"),
		engine: engine,
		stream: stream,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		handlers: make(map[string]func(context.Context, *client, *Message) error),
	}

	server.handlers["connect"] = server.handleConnect
	server.handlers["session:host"] = server.handleHostSession
	server.handlers["session:join"] = server.handleJoinSession
	server.handlers["session:leave"] = server.handleLeaveSession
	server.handlers["session:approve"] = server.handleApprove
	server.handlers["session:start"] = server.handleStart
	server.handlers["session:pause"] = server.handlePause
	server.handlers["session:resume"] = server.handleResume
	server.handlers["session:cancel"] = server.handleCancel
	server.handlers["session:mark"] = server.handleMutation
	server.handlers["session:unmark"] = server.handleMutation
	server.handlers["session:subscribe"] = server.handleSubscribe

	return server
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveConnection(ctx, w, r)
	})

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  0, // connections are long-lived
		WriteTimeout: 0,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// serveConnection - upgrades the connection and pumps messages until the
// client goes away.
func (that *Server) serveConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serveConnection")

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	cl := &client{conn: conn}

	defer func() {
		cl.cancelSubscriptions()
		if err = conn.Close(); err != nil {
			log.Debug("failed to close connection", "error", err)
		}
	}()

	log.Info("WebSocket connection established")

	for {
		var message Message
		if err = conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("error reading message", "error", err)
			}
			return
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			if err = cl.send(message.Action, Payload{Error: "unknown action"}); err != nil {
				log.Error("failed to send error response", "error", err)
			}
			continue
		}

		if err = handler(ctx, cl, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

func (that *Server) sendErrorResponse(cl *client, action, errorMsg, reason string) error {
	payload := Payload{Error: errorMsg, Reason: reason}
	if err := cl.send(action, payload); err != nil {
		return fmt.Errorf("failed to send error response: %w", err)
	}

	return nil
}
