package repositories

import "context"

// FriendRepository defines data access for the mutual friend graph and the
// pending request edges leading into it.
type FriendRepository interface {
	AreFriends(ctx context.Context, a, b string) (bool, error)
	ListFriends(ctx context.Context, username string) ([]string, error)
	// AddFriendship writes both directions of the edge in one transaction so
	// readers never observe a half-added friendship.
	AddFriendship(ctx context.Context, a, b string) error
	// CreateRequest records a pending edge from requester to receiver and
	// returns ErrConflict when the same ordered pair is already pending.
	CreateRequest(ctx context.Context, requester, receiver string) error
	ListRequests(ctx context.Context, receiver string) ([]string, error)
	// AcceptRequest atomically removes the pending edge and, when it existed,
	// adds the symmetric friendship. It reports whether a pending edge was
	// consumed; accepting a request that was never sent is a no-op.
	AcceptRequest(ctx context.Context, requester, receiver string) (bool, error)
}
