// Package social implements the friend-request lifecycle over the mutual
// friend graph.
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/gruf/go-mutexes"

	"github.com/momentchat/backend/internal/realtime"
	"github.com/momentchat/backend/internal/repositories"
)

var (
	// ErrAlreadyFriends rejects a request between users whose edge exists.
	ErrAlreadyFriends = errors.New("already friends")
	// ErrRequestPending rejects a duplicate of a still-pending request.
	ErrRequestPending = errors.New("friend request already sent")
	// ErrSelfRequest rejects a user befriending themselves.
	ErrSelfRequest = errors.New("cannot send a friend request to yourself")
)

// Engine mutates the friend graph and notifies the affected parties.
type Engine struct {
	users    repositories.UserRepository
	friends  repositories.FriendRepository
	registry *realtime.Registry
	locks    *mutexes.MutexMap
	logger   *slog.Logger
}

// NewEngine constructs a relationship engine.
func NewEngine(users repositories.UserRepository, friends repositories.FriendRepository, registry *realtime.Registry, locks *mutexes.MutexMap, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		users:    users,
		friends:  friends,
		registry: registry,
		locks:    locks,
		logger:   logger,
	}
}

// SendFriendRequest records a pending edge from -> to and notifies both ends.
// The reverse direction is an independent edge and is not affected.
func (e *Engine) SendFriendRequest(ctx context.Context, from, to string) error {
	if from == to {
		return ErrSelfRequest
	}

	unlock := e.lockPair(from, to)
	defer unlock()

	for _, username := range []string{from, to} {
		if _, err := e.users.FindByUsername(ctx, username); err != nil {
			return fmt.Errorf("lookup %s: %w", username, err)
		}
	}

	already, err := e.friends.AreFriends(ctx, from, to)
	if err != nil {
		return fmt.Errorf("check friendship: %w", err)
	}
	if already {
		return ErrAlreadyFriends
	}

	if err := e.friends.CreateRequest(ctx, from, to); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return ErrRequestPending
		}
		return fmt.Errorf("create friend request: %w", err)
	}

	e.registry.EmitTo(to, realtime.Event{
		Name: realtime.EventFriendRequest,
		Data: map[string]string{"from": from, "to": to},
	})
	e.registry.EmitTo(from, realtime.Event{
		Name: realtime.EventFriendRequestSent,
		Data: map[string]string{"message": "Friend request sent successfully", "to": to},
	})

	return nil
}

// AcceptFriendRequest promotes the pending edge from -> to into a symmetric
// friendship. Accepting a request that was never sent is a silent no-op.
func (e *Engine) AcceptFriendRequest(ctx context.Context, from, to string) error {
	if from == to {
		return nil
	}

	unlock := e.lockPair(from, to)
	defer unlock()

	accepted, err := e.friends.AcceptRequest(ctx, from, to)
	if err != nil {
		return fmt.Errorf("accept friend request: %w", err)
	}
	if !accepted {
		return nil
	}

	e.pushFriends(ctx, from)
	e.pushFriends(ctx, to)
	e.pushRequests(ctx, to)

	return nil
}

// AddFriend is the legacy direct path with no request step. Adding an
// existing friend is a silent no-op.
func (e *Engine) AddFriend(ctx context.Context, username, friend string) error {
	if username == friend {
		return ErrSelfRequest
	}

	unlock := e.lockPair(username, friend)
	defer unlock()

	for _, name := range []string{username, friend} {
		if _, err := e.users.FindByUsername(ctx, name); err != nil {
			return fmt.Errorf("lookup %s: %w", name, err)
		}
	}

	already, err := e.friends.AreFriends(ctx, username, friend)
	if err != nil {
		return fmt.Errorf("check friendship: %w", err)
	}
	if already {
		return nil
	}

	if err := e.friends.AddFriendship(ctx, username, friend); err != nil {
		return fmt.Errorf("add friendship: %w", err)
	}

	e.registry.EmitTo(username, realtime.Event{
		Name: realtime.EventFriendAdded,
		Data: map[string]string{"username": username, "friend": friend},
	})
	e.registry.EmitTo(friend, realtime.Event{
		Name: realtime.EventFriendAdded,
		Data: map[string]string{"username": friend, "friend": username},
	})

	return nil
}

// Friends returns the user's deduplicated friend list.
func (e *Engine) Friends(ctx context.Context, username string) ([]string, error) {
	if _, err := e.users.FindByUsername(ctx, username); err != nil {
		return nil, err
	}
	return e.friends.ListFriends(ctx, username)
}

// Requests returns the usernames with a pending request to username.
func (e *Engine) Requests(ctx context.Context, username string) ([]string, error) {
	if _, err := e.users.FindByUsername(ctx, username); err != nil {
		return nil, err
	}
	return e.friends.ListRequests(ctx, username)
}

func (e *Engine) pushFriends(ctx context.Context, username string) {
	friends, err := e.friends.ListFriends(ctx, username)
	if err != nil {
		e.logger.Error("list friends after graph change", "username", username, "error", err)
		return
	}
	e.registry.EmitTo(username, realtime.Event{
		Name: realtime.EventUpdateFriends,
		Data: map[string]any{"username": username, "friends": friends},
	})
}

func (e *Engine) pushRequests(ctx context.Context, username string) {
	requests, err := e.friends.ListRequests(ctx, username)
	if err != nil {
		e.logger.Error("list requests after graph change", "username", username, "error", err)
		return
	}
	e.registry.EmitTo(username, realtime.Event{
		Name: realtime.EventUpdateRequests,
		Data: map[string]any{"username": username, "friendRequests": requests},
	})
}

// lockPair takes both users' locks in a stable order so concurrent pair
// operations cannot deadlock.
func (e *Engine) lockPair(a, b string) func() {
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	unlockFirst := e.locks.Lock(first)
	unlockSecond := e.locks.Lock(second)
	return func() {
		unlockSecond()
		unlockFirst()
	}
}
