// Package moments enforces visibility rules over the social feed and fans
// out feed activity to the affected rooms.
package moments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/gruf/go-mutexes"
	"github.com/google/uuid"

	"github.com/momentchat/backend/internal/models"
	"github.com/momentchat/backend/internal/realtime"
	"github.com/momentchat/backend/internal/repositories"
)

var (
	// ErrForbidden indicates a visibility or ownership violation.
	ErrForbidden = errors.New("access denied")
	// ErrEmptyContent rejects posts and comments with no text.
	ErrEmptyContent = errors.New("content is empty")
	// ErrBadVisibility rejects unknown visibility tiers.
	ErrBadVisibility = errors.New("unknown visibility")
)

// ImageRemover deletes stored moment images by their URL.
type ImageRemover interface {
	Delete(ctx context.Context, url string) error
}

// Pagination describes a feed page.
type Pagination struct {
	Current int  `json:"current"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// Service is the feed access controller.
type Service struct {
	users    repositories.UserRepository
	friends  repositories.FriendRepository
	store    repositories.MomentRepository
	registry *realtime.Registry
	images   ImageRemover
	locks    *mutexes.MutexMap
	now      func() time.Time
	logger   *slog.Logger
}

// NewService constructs the feed access controller.
func NewService(users repositories.UserRepository, friends repositories.FriendRepository, store repositories.MomentRepository, registry *realtime.Registry, images ImageRemover, locks *mutexes.MutexMap, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		friends:  friends,
		store:    store,
		registry: registry,
		images:   images,
		locks:    locks,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// WithNowFunc overrides the clock. Tests only.
func (s *Service) WithNowFunc(now func() time.Time) {
	s.now = now
}

// CanAccess reports whether the user may read the moment: public posts,
// their own posts, and friends-only posts from their friends.
func (s *Service) CanAccess(ctx context.Context, username string, moment models.Moment) (bool, error) {
	if moment.Visibility == models.VisibilityPublic || moment.Author == username {
		return true, nil
	}
	if moment.Visibility == models.VisibilityFriends {
		return s.friends.AreFriends(ctx, username, moment.Author)
	}
	return false, nil
}

// List returns the page of moments visible to the user, newest first.
func (s *Service) List(ctx context.Context, username string, page, limit int) ([]Payload, Pagination, error) {
	if _, err := s.users.FindByUsername(ctx, username); err != nil {
		return nil, Pagination{}, fmt.Errorf("lookup viewer: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	listed, total, err := s.store.ListVisible(ctx, username, page, limit)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("list moments: %w", err)
	}

	pages := (total + limit - 1) / limit
	return PayloadList(listed), Pagination{
		Current: page,
		Total:   pages,
		HasMore: (page-1)*limit+len(listed) < total,
	}, nil
}

// Create persists a new post and notifies its audience: everyone for public
// posts, the author's friends for friends-only posts, nobody for private.
func (s *Service) Create(ctx context.Context, author, content, visibility string, images []string) (Payload, error) {
	if strings.TrimSpace(content) == "" {
		return Payload{}, ErrEmptyContent
	}
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if !models.ValidVisibility(visibility) {
		return Payload{}, ErrBadVisibility
	}

	if _, err := s.users.FindByUsername(ctx, author); err != nil {
		return Payload{}, fmt.Errorf("lookup author: %w", err)
	}

	moment := models.Moment{
		ID:         uuid.NewString(),
		Author:     author,
		Content:    content,
		Visibility: visibility,
		Images:     images,
		CreatedAt:  s.now(),
	}
	if err := s.store.Create(ctx, moment); err != nil {
		return Payload{}, fmt.Errorf("persist moment: %w", err)
	}

	event := realtime.Event{Name: realtime.EventNewMoment, Data: payload(moment)}
	switch visibility {
	case models.VisibilityPublic:
		s.registry.EmitAll(event)
	case models.VisibilityFriends:
		friends, err := s.friends.ListFriends(ctx, author)
		if err != nil {
			s.logger.Error("list friends for moment fan-out", "author", author, "error", err)
			break
		}
		for _, friend := range friends {
			s.registry.EmitTo(friend, event)
		}
	}

	return payload(moment), nil
}

// AddComment appends a comment to an accessible moment and notifies the
// moment's author.
func (s *Service) AddComment(ctx context.Context, username, momentID, content string) (Payload, error) {
	if strings.TrimSpace(content) == "" {
		return Payload{}, ErrEmptyContent
	}

	unlock := s.locks.Lock(momentKey(momentID))
	defer unlock()

	moment, err := s.authorize(ctx, username, momentID)
	if err != nil {
		return Payload{}, err
	}

	comment := models.Comment{
		ID:        uuid.NewString(),
		Username:  username,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.AddComment(ctx, momentID, comment); err != nil {
		return Payload{}, fmt.Errorf("persist comment: %w", err)
	}

	s.registry.EmitTo(moment.Author, realtime.Event{
		Name: realtime.EventNewComment,
		Data: map[string]any{"momentId": momentID, "comment": commentPayload(comment)},
	})

	moment.Comments = append(moment.Comments, comment)
	return payload(moment), nil
}

// ToggleLike adds the user's like, or removes it if already present. Only a
// new like notifies the author; an unlike is silent.
func (s *Service) ToggleLike(ctx context.Context, username, momentID string) (Payload, error) {
	unlock := s.locks.Lock(momentKey(momentID))
	defer unlock()

	moment, err := s.authorize(ctx, username, momentID)
	if err != nil {
		return Payload{}, err
	}

	if moment.LikedBy(username) {
		if err := s.store.RemoveLike(ctx, momentID, username); err != nil {
			return Payload{}, fmt.Errorf("remove like: %w", err)
		}
		kept := moment.Likes[:0]
		for _, like := range moment.Likes {
			if like.Username != username {
				kept = append(kept, like)
			}
		}
		moment.Likes = kept
		return payload(moment), nil
	}

	like := models.Like{Username: username, CreatedAt: s.now()}
	added, err := s.store.AddLike(ctx, momentID, like)
	if err != nil {
		return Payload{}, fmt.Errorf("add like: %w", err)
	}
	if added {
		s.registry.EmitTo(moment.Author, realtime.Event{
			Name: realtime.EventNewLike,
			Data: map[string]string{"momentId": momentID, "username": username},
		})
		moment.Likes = append(moment.Likes, like)
	}

	return payload(moment), nil
}

// Delete removes a moment and its stored images. Only the author may delete.
func (s *Service) Delete(ctx context.Context, username, momentID string) error {
	unlock := s.locks.Lock(momentKey(momentID))
	defer unlock()

	moment, err := s.store.FindByID(ctx, momentID)
	if err != nil {
		return fmt.Errorf("load moment: %w", err)
	}
	if moment.Author != username {
		return ErrForbidden
	}

	for _, url := range moment.Images {
		if s.images == nil {
			break
		}
		if err := s.images.Delete(ctx, url); err != nil {
			s.logger.Error("delete moment image", "momentId", momentID, "url", url, "error", err)
		}
	}

	if err := s.store.Delete(ctx, momentID); err != nil {
		return fmt.Errorf("delete moment: %w", err)
	}

	s.registry.EmitAll(realtime.Event{
		Name: realtime.EventMomentDeleted,
		Data: map[string]string{"momentId": momentID},
	})

	return nil
}

// authorize loads the moment and verifies the user exists and may access it.
func (s *Service) authorize(ctx context.Context, username, momentID string) (models.Moment, error) {
	moment, err := s.store.FindByID(ctx, momentID)
	if err != nil {
		return models.Moment{}, fmt.Errorf("load moment: %w", err)
	}
	if _, err := s.users.FindByUsername(ctx, username); err != nil {
		return models.Moment{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.CanAccess(ctx, username, moment)
	if err != nil {
		return models.Moment{}, fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return models.Moment{}, ErrForbidden
	}

	return moment, nil
}

// momentKey namespaces moment locks away from username locks, which share
// the same lock map.
func momentKey(momentID string) string {
	return "moment:" + momentID
}
