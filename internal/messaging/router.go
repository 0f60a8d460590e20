package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CivicForms/FormPilot/internal/dialogue"
	"github.com/CivicForms/FormPilot/internal/models"
	"github.com/CivicForms/FormPilot/internal/store"
)

// DialogueRouter consumes incoming channel messages and drives the matching
// dialogue session. One router serves one channel service; the channel name
// tags the sessions it creates.
type DialogueRouter struct {
	channel  string
	service  Service
	sessions *dialogue.SessionManager
	store    store.Store
}

// NewDialogueRouter creates a router for the given channel service.
func NewDialogueRouter(channel string, service Service, sessions *dialogue.SessionManager, st store.Store) *DialogueRouter {
	return &DialogueRouter{
		channel:  channel,
		service:  service,
		sessions: sessions,
		store:    st,
	}
}

// Start begins consuming responses and receipts from the channel service.
// It returns immediately; processing stops when the context is cancelled or
// the service closes its channels.
func (r *DialogueRouter) Start(ctx context.Context) {
	slog.Info("DialogueRouter.Start: router started", "channel", r.channel)

	go func() {
		defer slog.Info("DialogueRouter: response processing stopped", "channel", r.channel)
		for {
			select {
			case response, ok := <-r.service.Responses():
				if !ok {
					return
				}
				if err := r.handleResponse(ctx, response); err != nil {
					slog.Error("DialogueRouter: failed to process response", "error", err, "from", response.From)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer slog.Info("DialogueRouter: receipt processing stopped", "channel", r.channel)
		for {
			select {
			case receipt, ok := <-r.service.Receipts():
				if !ok {
					return
				}
				if err := r.store.AddReceipt(receipt); err != nil {
					slog.Error("DialogueRouter: failed to persist receipt", "error", err, "to", receipt.To)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// handleResponse routes one incoming message: find or create the sender's
// open session, advance it, and send every reply back over the channel.
func (r *DialogueRouter) handleResponse(ctx context.Context, response models.Response) error {
	from, err := r.service.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		return fmt.Errorf("DialogueRouter.handleResponse: invalid sender: %w", err)
	}

	if err := r.store.AddResponse(response); err != nil {
		slog.Error("DialogueRouter: failed to persist response", "error", err, "from", from)
	}

	session, err := r.sessions.FindByRecipient(ctx, r.channel, from)
	if err != nil {
		return fmt.Errorf("DialogueRouter.handleResponse: %w", err)
	}

	// first contact opens a session; the greeting is the reply, the
	// triggering message is not replayed into the new dialogue
	if session == nil {
		created, turn, err := r.sessions.Create(ctx, r.channel, from)
		if err != nil {
			return fmt.Errorf("DialogueRouter.handleResponse: %w", err)
		}
		slog.Info("DialogueRouter: new dialogue opened", "sessionID", created.SessionID, "from", from)
		return r.sendTurn(ctx, from, turn)
	}

	var turn *dialogue.Turn
	if response.Image != nil {
		turn, err = r.sessions.IngestDocument(ctx, session.SessionID, response.Image, response.MimeType)
		if errors.Is(err, dialogue.ErrNoDocumentExpected) {
			slog.Debug("DialogueRouter: unexpected document ignored", "sessionID", session.SessionID)
			return nil
		}
	} else {
		turn, err = r.sessions.Advance(ctx, session.SessionID, response.Body)
	}
	if err != nil {
		if errors.Is(err, models.ErrDialogueCompleted) {
			// raced with completion; the next message opens a new dialogue
			return nil
		}
		return fmt.Errorf("DialogueRouter.handleResponse: %w", err)
	}

	return r.sendTurn(ctx, from, turn)
}

// sendTurn delivers every message of a turn in order. A failed send aborts
// the remainder so the user does not get later messages without their
// predecessors.
func (r *DialogueRouter) sendTurn(ctx context.Context, to string, turn *dialogue.Turn) error {
	for _, msg := range turn.Messages {
		if err := r.service.SendMessage(ctx, to, msg); err != nil {
			return fmt.Errorf("DialogueRouter.sendTurn: %w", err)
		}
	}
	return nil
}
