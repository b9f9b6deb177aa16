package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/bingo-backend/internal/apperror"
	"github.com/rocketscienceinc/bingo-backend/internal/entity"
	"github.com/rocketscienceinc/bingo-backend/internal/pkg"
)

func (that *Server) handleConnect(_ context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleConnect")

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return err
	}

	participantID := ""
	if payloadReq.Participant != nil {
		participantID = payloadReq.Participant.ID
	}
	if participantID == "" {
		participantID = pkg.GenerateParticipantID()
	}

	cl.participantID = participantID

	payloadResp := Payload{
		Participant: &Participant{ID: participantID},
	}

	if err = cl.send(msg.Action, payloadResp); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("successfully connected participant", "participantID", participantID)

	return nil
}

func (that *Server) handleHostSession(ctx context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleHostSession")

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return err
	}

	hostID, err := actingParticipant(cl, payloadReq)
	if err != nil {
		return that.sendErrorResponse(cl, msg.Action, "participant is required", "")
	}

	settings := entity.Settings{}
	if payloadReq.Settings != nil {
		settings = *payloadReq.Settings
	}

	color, team := participantAppearance(payloadReq)

	session, err := that.engine.CreateSession(ctx, hostID, payloadReq.BoardRef, color, team, settings)
	if err != nil {
		log.Error("failed to create session", "error", err)
		return that.sendErrorResponse(cl, msg.Action, "failed to create session", apperror.Reason(err))
	}

	if err = cl.send(msg.Action, Payload{Session: session}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("session hosted", "sessionID", session.ID, "hostID", hostID)

	return nil
}

func (that *Server) handleJoinSession(ctx context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleJoinSession")

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return err
	}

	participantID, err := actingParticipant(cl, payloadReq)
	if err != nil {
		return that.sendErrorResponse(cl, msg.Action, "participant is required", "")
	}

	role := entity.RolePlayer
	if payloadReq.Participant != nil && payloadReq.Participant.Role != "" {
		role = payloadReq.Participant.Role
	}

	color, team := participantAppearance(payloadReq)

	session, err := that.engine.Join(ctx, payloadReq.SessionID, participantID, role, color, team, payloadReq.Password)
	if err != nil {
		log.Error("failed to join session", "sessionID", payloadReq.SessionID, "error", err)
		return that.sendErrorResponse(cl, msg.Action, err.Error(), apperror.Reason(err))
	}

	if err = cl.send(msg.Action, Payload{Session: session}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("participant joined session", "sessionID", session.ID, "participantID", participantID)

	return nil
}

func (that *Server) handleLeaveSession(ctx context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleLeaveSession")

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return err
	}

	participantID, err := actingParticipant(cl, payloadReq)
	if err != nil {
		return that.sendErrorResponse(cl, msg.Action, "participant is required", "")
	}

	session, err := that.engine.Leave(ctx, payloadReq.SessionID, participantID)
	if err != nil {
		log.Error("failed to leave session", "sessionID", payloadReq.SessionID, "error", err)
		return that.sendErrorResponse(cl, msg.Action, err.Error(), apperror.Reason(err))
	}

	if err = cl.send(msg.Action, Payload{Session: session}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("participant left session", "sessionID", session.ID, "participantID", participantID)

	return nil
}

func (that *Server) handleApprove(ctx context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleApprove")

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return err
	}

	approverID, err := actingParticipant(cl, payloadReq)
	if err != nil {
		return that.sendErrorResponse(cl, msg.Action, "participant is required", "")
	}

	if payloadReq.TargetID == "" {
		return that.sendErrorResponse(cl, msg.Action, "target participant is required", "")
	}

	if err = that.engine.Approve(ctx, payloadReq.SessionID, approverID, payloadReq.TargetID); err != nil {
		log.Error("failed to approve participant", "sessionID", payloadReq.SessionID, "error", err)
		return that.sendErrorResponse(cl, msg.Action, err.Error(), apperror.Reason(err))
	}

	if err = cl.send(msg.Action, Payload{TargetID: payloadReq.TargetID}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	return nil
}

func (that *Server) handleStart(ctx context.Context, cl *client, msg *Message) error {
	return that.handleTransition(ctx, cl, msg, that.engine.Start)
}

func (that *Server) handlePause(ctx context.Context, cl *client, msg *Message) error {
	return that.handleTransition(ctx, cl, msg, that.engine.Pause)
}

func (that *Server) handleResume(ctx context.Context, cl *client, msg *Message) error {
	return that.handleTransition(ctx, cl, msg, that.engine.Resume)
}

func (that *Server) handleCancel(ctx context.Context, cl *client, msg *Message) error {
	return that.handleTransition(ctx, cl, msg, that.engine.Cancel)
}

func (that *Server) handleTransition(ctx context.Context, cl *client, msg *Message, op func(context.Context, string, string) (*entity.Session, error)) error {
	log := that.logger.With("method", "handleTransition", "action", msg.Action)

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return err
	}

	actorID, err := actingParticipant(cl, payloadReq)
	if err != nil {
		return that.sendErrorResponse(cl, msg.Action, "participant is required", "")
	}

	session, err := op(ctx, payloadReq.SessionID, actorID)
	if err != nil {
		log.Error("failed to change session status", "sessionID", payloadReq.SessionID, "error", err)
		return that.sendErrorResponse(cl, msg.Action, err.Error(), apperror.Reason(err))
	}

	if err = cl.send(msg.Action, Payload{Session: session}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	log.Info("session status changed", "sessionID", session.ID, "status", session.Status)

	return nil
}

// handleMutation - serves both session:mark and session:unmark. A rejected
// mutation is a normal reply carrying the typed reason, not a transport
// error; only the result distinguishes rejection from an accepted no-op.
func (that *Server) handleMutation(ctx context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleMutation", "action", msg.Action)

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return err
	}

	participantID, err := actingParticipant(cl, payloadReq)
	if err != nil {
		return that.sendErrorResponse(cl, msg.Action, "participant is required", "")
	}

	if payloadReq.Cell == nil {
		return that.sendErrorResponse(cl, msg.Action, "cell is required", "")
	}

	action := entity.ActionMark
	if msg.Action == "session:unmark" {
		action = entity.ActionUnmark
	}

	req := &entity.MutationRequest{
		SessionID:             payloadReq.SessionID,
		ParticipantID:         participantID,
		CellPosition:          *payloadReq.Cell,
		Action:                action,
		ClientObservedVersion: payloadReq.ObservedVersion,
	}

	result, err := that.engine.ApplyMutation(ctx, req)
	if err != nil {
		log.Debug("mutation rejected", "sessionID", req.SessionID, "reason", result.Reason)
	}

	if err = cl.send(msg.Action, Payload{Result: result}); err != nil {
		return fmt.Errorf("failed to send response: %w", err)
	}

	return nil
}

// handleSubscribe - attaches the connection to the session's delta stream,
// replaying from the subscriber's last observed version. A version older
// than the retention window answers with resync_required so the client
// fetches the REST snapshot and resubscribes.
func (that *Server) handleSubscribe(ctx context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleSubscribe")

	payloadReq, err := decodePayload(msg)
	if err != nil {
		return err
	}

	if payloadReq.SessionID == "" {
		return that.sendErrorResponse(cl, msg.Action, "session id is required", "")
	}

	deltas, cancel, err := that.stream.Subscribe(payloadReq.SessionID, payloadReq.SinceVersion)
	if errors.Is(err, apperror.ErrResyncRequired) {
		log.Info("subscriber requires resync", "sessionID", payloadReq.SessionID, "sinceVersion", payloadReq.SinceVersion)
		return that.sendErrorResponse(cl, msg.Action, err.Error(), apperror.Reason(err))
	}

	if err != nil {
		log.Error("failed to subscribe", "sessionID", payloadReq.SessionID, "error", err)
		return that.sendErrorResponse(cl, msg.Action, "failed to subscribe", apperror.Reason(err))
	}

	cl.addCancel(cancel)

	go func() {
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case delta, ok := <-deltas:
				if !ok {
					return
				}
				if sendErr := cl.send("session:delta", Payload{Delta: &delta}); sendErr != nil {
					log.Debug("failed to push delta, detaching subscriber", "sessionID", payloadReq.SessionID, "error", sendErr)
					return
				}
			}
		}
	}()

	log.Info("subscriber attached", "sessionID", payloadReq.SessionID, "sinceVersion", payloadReq.SinceVersion)

	return nil
}

func decodePayload(msg *Message) (*Payload, error) {
	payload := &Payload{}
	if len(msg.Payload) == 0 {
		return payload, nil
	}

	if err := json.Unmarshal(msg.Payload, payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return payload, nil
}

func actingParticipant(cl *client, payload *Payload) (string, error) {
	if payload.Participant != nil && payload.Participant.ID != "" {
		return payload.Participant.ID, nil
	}

	if cl.participantID != "" {
		return cl.participantID, nil
	}

	return "", errors.New("participant is required")
}

func participantAppearance(payload *Payload) (color, team string) {
	if payload.Participant == nil {
		return "", ""
	}
	return payload.Participant.Color, payload.Participant.Team
}
