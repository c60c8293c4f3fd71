package models

import "time"

// User represents an account within the MomentChat platform. Usernames are the
// identity key used everywhere else in the system, including room addressing.
type User struct {
	Username     string
	Password     string
	Email        string
	Bio          string
	Points       int64
	MessagesSent int64
	OnlineTime   int64 // accumulated seconds across settled sessions
	LoginTime    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Online reports whether the user has an unsettled login timestamp.
func (u User) Online() bool {
	return u.LoginTime != nil
}

// Message kinds accepted by the relay.
const (
	MessageKindText  = "text"
	MessageKindAudio = "audio"
)

// Message is an immutable chat record. An empty To marks a group message.
type Message struct {
	ID        string
	From      string
	To        string
	Body      string
	Kind      string
	CreatedAt time.Time
}

// Group reports whether the message was addressed to everyone.
func (m Message) Group() bool {
	return m.To == ""
}

// Moment visibility tiers.
const (
	VisibilityPublic  = "public"
	VisibilityFriends = "friends"
	VisibilityPrivate = "private"
)

// ValidVisibility reports whether v names a known visibility tier.
func ValidVisibility(v string) bool {
	switch v {
	case VisibilityPublic, VisibilityFriends, VisibilityPrivate:
		return true
	}
	return false
}

// Like records a single user's like on a moment. At most one per user.
type Like struct {
	Username  string
	CreatedAt time.Time
}

// Comment is an entry appended to a moment's comment thread.
type Comment struct {
	ID        string
	Username  string
	Content   string
	CreatedAt time.Time
}

// Moment is a feed post with visibility-scoped access.
type Moment struct {
	ID         string
	Author     string
	Content    string
	Visibility string
	Images     []string
	Likes      []Like
	Comments   []Comment
	CreatedAt  time.Time
}

// LikedBy reports whether username already appears in the like list.
func (m Moment) LikedBy(username string) bool {
	for _, like := range m.Likes {
		if like.Username == username {
			return true
		}
	}
	return false
}
