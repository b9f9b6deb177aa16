package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rocketscienceinc/bingo-backend/internal/apperror"
	"github.com/rocketscienceinc/bingo-backend/internal/entity"
)

type sessionReader interface {
	Snapshot(sessionID string) (*entity.Session, error)
	RestoreSession(ctx context.Context, sessionID string) (*entity.Session, error)
}

func pingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

// snapshotHandler - serves the full session snapshot. This is the resync
// path a subscriber falls back to when the broadcaster's replay window no
// longer covers its last observed version. Sessions missing from memory are
// restored from their checkpoint.
func snapshotHandler(engine sessionReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")

		session, err := engine.Snapshot(sessionID)
		if errors.Is(err, apperror.ErrSessionNotFound) {
			session, err = engine.RestoreSession(r.Context(), sessionID)
		}

		if errors.Is(err, apperror.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err = json.NewEncoder(w).Encode(session); err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}
