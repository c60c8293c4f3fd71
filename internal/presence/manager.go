// Package presence binds live connections to identities and settles each
// session's online time into persisted rewards exactly once.
package presence

import (
	"context"
	"log/slog"
	"time"

	"codeberg.org/gruf/go-mutexes"

	"github.com/momentchat/backend/internal/moments"
	"github.com/momentchat/backend/internal/realtime"
	"github.com/momentchat/backend/internal/repositories"
)

// initialMomentCount is how many recent feed entries are pushed on login.
const initialMomentCount = 10

// Manager implements the session lifecycle: bind on login, settle on
// disconnect or logout.
type Manager struct {
	users    repositories.UserRepository
	friends  repositories.FriendRepository
	moments  repositories.MomentRepository
	registry *realtime.Registry
	locks    *mutexes.MutexMap
	now      func() time.Time
	logger   *slog.Logger
}

// NewManager constructs a presence manager.
func NewManager(users repositories.UserRepository, friends repositories.FriendRepository, momentStore repositories.MomentRepository, registry *realtime.Registry, locks *mutexes.MutexMap, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		users:    users,
		friends:  friends,
		moments:  momentStore,
		registry: registry,
		locks:    locks,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// WithNowFunc overrides the clock. Tests only.
func (m *Manager) WithNowFunc(now func() time.Time) {
	m.now = now
}

// Bind authenticates the connection against an existing account, stamps the
// login time, joins the username's room, announces the presence globally, and
// pushes the user's current state to the new connection only.
func (m *Manager) Bind(ctx context.Context, client *realtime.Client, username string) error {
	unlock := m.locks.Lock(username)
	defer unlock()

	if _, err := m.users.FindByUsername(ctx, username); err != nil {
		return err
	}

	if err := m.users.RecordLogin(ctx, username, m.now()); err != nil {
		return err
	}

	client.SetUsername(username)
	m.registry.Bind(username, client)

	m.registry.EmitAll(realtime.Event{
		Name: realtime.EventUserConnected,
		Data: map[string]string{"username": username},
	})

	m.pushState(ctx, client, username)
	return nil
}

// pushState sends points, friends, pending requests, and the freshest visible
// moments to a newly bound connection. Each push is best-effort.
func (m *Manager) pushState(ctx context.Context, client *realtime.Client, username string) {
	user, err := m.users.FindByUsername(ctx, username)
	if err != nil {
		m.logger.Error("load user for state push", "username", username, "error", err)
		return
	}

	client.Send(realtime.Event{
		Name: realtime.EventUpdatePoints,
		Data: map[string]any{"username": username, "points": user.Points},
	})

	friends, err := m.friends.ListFriends(ctx, username)
	if err != nil {
		m.logger.Error("list friends for state push", "username", username, "error", err)
	} else {
		client.Send(realtime.Event{
			Name: realtime.EventUpdateFriends,
			Data: map[string]any{"username": username, "friends": unique(friends)},
		})
	}

	requests, err := m.friends.ListRequests(ctx, username)
	if err != nil {
		m.logger.Error("list friend requests for state push", "username", username, "error", err)
	} else {
		client.Send(realtime.Event{
			Name: realtime.EventUpdateRequests,
			Data: map[string]any{"username": username, "friendRequests": unique(requests)},
		})
	}

	latest, _, err := m.moments.ListVisible(ctx, username, 1, initialMomentCount)
	if err != nil {
		m.logger.Error("list moments for state push", "username", username, "error", err)
		return
	}
	client.Send(realtime.Event{
		Name: realtime.EventInitialMoments,
		Data: moments.PayloadList(latest),
	})
}

// Settle converts the elapsed session time into persisted online time and
// points, then announces the departure. Overlapping disconnect and logout
// signals for the same username settle at most once: the per-user lock
// serializes callers and the store only applies the update while a login
// timestamp is present.
func (m *Manager) Settle(ctx context.Context, username string) {
	unlock := m.locks.Lock(username)
	defer unlock()

	user, err := m.users.FindByUsername(ctx, username)
	switch {
	case err != nil:
		m.logger.Error("load user for settlement", "username", username, "error", err)
	case user.LoginTime == nil:
		// Already settled; presence announcement still goes out.
	default:
		elapsed := int64(m.now().Sub(*user.LoginTime) / time.Second)
		if elapsed < 0 {
			elapsed = 0
		}
		if err := m.users.Settle(ctx, username, elapsed, elapsed/60); err != nil {
			// Not retried; the session state is still discarded so the user
			// does not end up stuck online.
			m.logger.Error("settle session", "username", username, "elapsed", elapsed, "error", err)
		}
	}

	m.registry.EmitAll(realtime.Event{
		Name: realtime.EventUserDisconnected,
		Data: map[string]string{"username": username},
	})
}

// unique preserves order while dropping duplicate entries.
func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
