package moments

import (
	"time"

	"github.com/momentchat/backend/internal/models"
)

// Payload is the wire shape of a moment, shared by the feed endpoints and
// the realtime pushes.
type Payload struct {
	ID         string           `json:"id"`
	User       string           `json:"user"`
	Content    string           `json:"content"`
	Images     []string         `json:"images"`
	Visibility string           `json:"visibility"`
	Likes      []LikePayload    `json:"likes"`
	Comments   []CommentPayload `json:"comments"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// LikePayload is one like entry on a moment.
type LikePayload struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentPayload is one comment entry on a moment.
type CommentPayload struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// PayloadList converts stored moments into their wire shape.
func PayloadList(listed []models.Moment) []Payload {
	out := make([]Payload, 0, len(listed))
	for _, moment := range listed {
		out = append(out, payload(moment))
	}
	return out
}

func payload(moment models.Moment) Payload {
	likes := make([]LikePayload, 0, len(moment.Likes))
	for _, like := range moment.Likes {
		likes = append(likes, LikePayload{Username: like.Username, CreatedAt: like.CreatedAt})
	}
	comments := make([]CommentPayload, 0, len(moment.Comments))
	for _, comment := range moment.Comments {
		comments = append(comments, commentPayload(comment))
	}
	images := moment.Images
	if images == nil {
		images = []string{}
	}
	return Payload{
		ID:         moment.ID,
		User:       moment.Author,
		Content:    moment.Content,
		Images:     images,
		Visibility: moment.Visibility,
		Likes:      likes,
		Comments:   comments,
		CreatedAt:  moment.CreatedAt,
	}
}

func commentPayload(comment models.Comment) CommentPayload {
	return CommentPayload{
		ID:        comment.ID,
		Username:  comment.Username,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt,
	}
}
