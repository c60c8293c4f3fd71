// Package chat persists and fans out group and direct messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/momentchat/backend/internal/models"
	"github.com/momentchat/backend/internal/realtime"
	"github.com/momentchat/backend/internal/repositories"
)

var (
	// ErrEmptyBody rejects messages with no content.
	ErrEmptyBody = errors.New("message body is empty")
	// ErrBadKind rejects unknown message kinds.
	ErrBadKind = errors.New("unsupported message kind")
)

// MessagePayload is the wire shape of a relayed message.
type MessagePayload struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// Relay persists messages and delivers them to the right rooms.
type Relay struct {
	users    repositories.UserRepository
	messages repositories.MessageRepository
	registry *realtime.Registry
	now      func() time.Time
	logger   *slog.Logger
}

// NewRelay constructs a message relay.
func NewRelay(users repositories.UserRepository, messages repositories.MessageRepository, registry *realtime.Registry, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		users:    users,
		messages: messages,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// WithNowFunc overrides the clock. Tests only.
func (r *Relay) WithNowFunc(now func() time.Time) {
	r.now = now
}

// SendGroupMessage persists a message addressed to everyone, rewards the
// sender with a point, and broadcasts it to all live connections, the sender
// included.
func (r *Relay) SendGroupMessage(ctx context.Context, from, body, kind string) error {
	kind, err := normalizeKind(kind)
	if err != nil {
		return err
	}
	if body == "" {
		return ErrEmptyBody
	}

	if _, err := r.users.FindByUsername(ctx, from); err != nil {
		return fmt.Errorf("lookup sender: %w", err)
	}

	message := models.Message{
		ID:        uuid.NewString(),
		From:      from,
		Body:      body,
		Kind:      kind,
		CreatedAt: r.now(),
	}
	if err := r.messages.Create(ctx, message); err != nil {
		return fmt.Errorf("persist group message: %w", err)
	}

	points, err := r.users.AddMessagePoints(ctx, from)
	if err != nil {
		r.logger.Error("award message points", "username", from, "error", err)
	} else {
		r.registry.EmitTo(from, realtime.Event{
			Name: realtime.EventUpdatePoints,
			Data: map[string]any{"username": from, "points": points},
		})
	}

	r.registry.EmitAll(realtime.Event{
		Name: realtime.EventChatMessage,
		Data: payload(message),
	})

	return nil
}

// SendPrivateMessage persists a direct message and delivers it to the sender
// (echo) and the recipient's room. An offline recipient still gets the
// message on their next history load.
func (r *Relay) SendPrivateMessage(ctx context.Context, from, to, body, kind string) error {
	kind, err := normalizeKind(kind)
	if err != nil {
		return err
	}
	if body == "" {
		return ErrEmptyBody
	}

	for _, username := range []string{from, to} {
		if _, err := r.users.FindByUsername(ctx, username); err != nil {
			return fmt.Errorf("lookup %s: %w", username, err)
		}
	}

	message := models.Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Body:      body,
		Kind:      kind,
		CreatedAt: r.now(),
	}
	if err := r.messages.Create(ctx, message); err != nil {
		return fmt.Errorf("persist private message: %w", err)
	}

	event := realtime.Event{Name: realtime.EventPrivateMessage, Data: payload(message)}
	r.registry.EmitTo(from, event)
	if from != to {
		r.registry.EmitTo(to, event)
	}

	return nil
}

// LoadPrivateHistory returns the full conversation between the two users in
// send order, with from/to normalized to their usernames.
func (r *Relay) LoadPrivateHistory(ctx context.Context, from, to string) ([]MessagePayload, error) {
	for _, username := range []string{from, to} {
		if _, err := r.users.FindByUsername(ctx, username); err != nil {
			return nil, fmt.Errorf("lookup %s: %w", username, err)
		}
	}

	messages, err := r.messages.ListBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load private history: %w", err)
	}

	history := make([]MessagePayload, 0, len(messages))
	for _, message := range messages {
		history = append(history, payload(message))
	}
	return history, nil
}

func payload(message models.Message) MessagePayload {
	return MessagePayload{
		ID:        message.ID,
		From:      message.From,
		To:        message.To,
		Message:   message.Body,
		Kind:      message.Kind,
		Timestamp: message.CreatedAt,
	}
}

func normalizeKind(kind string) (string, error) {
	switch kind {
	case "":
		return models.MessageKindText, nil
	case models.MessageKindText, models.MessageKindAudio:
		return kind, nil
	}
	return "", ErrBadKind
}
