package realtime

import "encoding/json"

// Event is the outbound wire envelope delivered to clients.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// Intent is an inbound message from a bound connection. The payload is kept
// raw so each handler can decode its own shape.
type Intent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Inbound intent names accepted from clients.
const (
	IntentLogin             = "login"
	IntentLogout            = "logout"
	IntentGetFriends        = "get-friends"
	IntentGetFriendRequests = "get-friend-requests"
	IntentSendFriendRequest = "send-friend-request"
	IntentAcceptRequest     = "accept-friend-request"
	IntentAddFriend         = "add-friend"
	IntentChatMessage       = "chat-message"
	IntentPrivateMessage    = "private-message"
	IntentLoadPrivateChat   = "load-private-chat"
)

// Outbound event names emitted to clients.
const (
	EventUserConnected      = "user-connected"
	EventUserDisconnected   = "user-disconnected"
	EventFriendRequest      = "friend-request"
	EventFriendRequestSent  = "friend-request-sent"
	EventFriendRequestError = "friend-request-error"
	EventFriendAdded        = "friend-added"
	EventUpdatePoints       = "update-points"
	EventUpdateFriends      = "update-friends"
	EventUpdateRequests     = "update-friend-requests"
	EventChatMessage        = "chat-message"
	EventPrivateMessage     = "private-message"
	EventPrivateChatHistory = "private-chat-history"
	EventInitialMoments     = "initial-moments"
	EventNewMoment          = "new-moment"
	EventMomentDeleted      = "moment-deleted"
	EventNewComment         = "new-comment"
	EventNewLike            = "new-like"
	EventError              = "error"
)
