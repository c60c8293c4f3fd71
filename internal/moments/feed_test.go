package moments

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeberg.org/gruf/go-mutexes"

	"github.com/momentchat/backend/internal/models"
	"github.com/momentchat/backend/internal/realtime"
	"github.com/momentchat/backend/internal/repositories"
)

type stubUserRepo struct {
	users map[string]struct{}
}

func (r *stubUserRepo) Create(_ context.Context, user models.User) error {
	r.users[user.Username] = struct{}{}
	return nil
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (models.User, error) {
	if _, ok := r.users[username]; !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return models.User{Username: username}, nil
}

func (r *stubUserRepo) UpdateProfile(context.Context, string, string, string) error { return nil }

func (r *stubUserRepo) RecordLogin(context.Context, string, time.Time) error { return nil }

func (r *stubUserRepo) Settle(context.Context, string, int64, int64) error { return nil }

func (r *stubUserRepo) AddMessagePoints(context.Context, string) (int64, error) { return 0, nil }

type stubFriendRepo struct {
	friends map[string][]string
}

func (r *stubFriendRepo) AreFriends(_ context.Context, a, b string) (bool, error) {
	for _, friend := range r.friends[a] {
		if friend == b {
			return true, nil
		}
	}
	return false, nil
}

func (r *stubFriendRepo) ListFriends(_ context.Context, username string) ([]string, error) {
	return r.friends[username], nil
}

func (r *stubFriendRepo) AddFriendship(_ context.Context, a, b string) error {
	r.friends[a] = append(r.friends[a], b)
	r.friends[b] = append(r.friends[b], a)
	return nil
}

func (r *stubFriendRepo) CreateRequest(context.Context, string, string) error { return nil }

func (r *stubFriendRepo) ListRequests(context.Context, string) ([]string, error) { return nil, nil }

func (r *stubFriendRepo) AcceptRequest(context.Context, string, string) (bool, error) {
	return false, nil
}

// memoryMomentRepo mirrors the store's visibility predicate so List behaves
// like the real thing: newest first, public or own or friends-of-author.
type memoryMomentRepo struct {
	friends *stubFriendRepo
	moments []models.Moment
}

func (r *memoryMomentRepo) Create(_ context.Context, moment models.Moment) error {
	r.moments = append([]models.Moment{moment}, r.moments...)
	return nil
}

func (r *memoryMomentRepo) FindByID(_ context.Context, id string) (models.Moment, error) {
	for _, moment := range r.moments {
		if moment.ID == id {
			return moment, nil
		}
	}
	return models.Moment{}, repositories.ErrNotFound
}

func (r *memoryMomentRepo) ListVisible(ctx context.Context, viewer string, page, limit int) ([]models.Moment, int, error) {
	var visible []models.Moment
	for _, moment := range r.moments {
		switch {
		case moment.Visibility == models.VisibilityPublic, moment.Author == viewer:
			visible = append(visible, moment)
		case moment.Visibility == models.VisibilityFriends:
			if ok, _ := r.friends.AreFriends(ctx, viewer, moment.Author); ok {
				visible = append(visible, moment)
			}
		}
	}

	total := len(visible)
	offset := (page - 1) * limit
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return visible[offset:end], total, nil
}

func (r *memoryMomentRepo) AddComment(_ context.Context, momentID string, comment models.Comment) error {
	for i := range r.moments {
		if r.moments[i].ID == momentID {
			r.moments[i].Comments = append(r.moments[i].Comments, comment)
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (r *memoryMomentRepo) AddLike(_ context.Context, momentID string, like models.Like) (bool, error) {
	for i := range r.moments {
		if r.moments[i].ID != momentID {
			continue
		}
		if r.moments[i].LikedBy(like.Username) {
			return false, nil
		}
		r.moments[i].Likes = append(r.moments[i].Likes, like)
		return true, nil
	}
	return false, repositories.ErrNotFound
}

func (r *memoryMomentRepo) RemoveLike(_ context.Context, momentID, username string) error {
	for i := range r.moments {
		if r.moments[i].ID != momentID {
			continue
		}
		kept := r.moments[i].Likes[:0]
		for _, like := range r.moments[i].Likes {
			if like.Username != username {
				kept = append(kept, like)
			}
		}
		r.moments[i].Likes = kept
		return nil
	}
	return repositories.ErrNotFound
}

func (r *memoryMomentRepo) Delete(_ context.Context, id string) error {
	for i, moment := range r.moments {
		if moment.ID == id {
			r.moments = append(r.moments[:i], r.moments[i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

type recordingRemover struct {
	deleted []string
}

func (r *recordingRemover) Delete(_ context.Context, url string) error {
	r.deleted = append(r.deleted, url)
	return nil
}

type feedFixture struct {
	service  *Service
	friends  *stubFriendRepo
	store    *memoryMomentRepo
	registry *realtime.Registry
	remover  *recordingRemover
}

func newFeedFixture(usernames ...string) feedFixture {
	users := &stubUserRepo{users: make(map[string]struct{})}
	for _, username := range usernames {
		users.users[username] = struct{}{}
	}
	friends := &stubFriendRepo{friends: make(map[string][]string)}
	store := &memoryMomentRepo{friends: friends}
	registry := realtime.NewRegistry(nil)
	remover := &recordingRemover{}
	locks := mutexes.MutexMap{}
	service := NewService(users, friends, store, registry, remover, &locks, nil)
	return feedFixture{service: service, friends: friends, store: store, registry: registry, remover: remover}
}

func (f feedFixture) connect(username string) *realtime.Client {
	client := realtime.NewClient(nil, nil, nil)
	f.registry.Register(client)
	if username != "" {
		client.SetUsername(username)
		f.registry.Bind(username, client)
	}
	return client
}

func drainNames(client *realtime.Client) []string {
	var names []string
	for {
		event, ok := client.Receive()
		if !ok {
			return names
		}
		names = append(names, event.Name)
	}
}

func TestCanAccess(t *testing.T) {
	fx := newFeedFixture("author", "friend", "stranger")
	ctx := context.Background()
	if err := fx.friends.AddFriendship(ctx, "author", "friend"); err != nil {
		t.Fatalf("seed friendship: %v", err)
	}

	cases := []struct {
		name       string
		viewer     string
		visibility string
		want       bool
	}{
		{"public visible to anyone", "stranger", models.VisibilityPublic, true},
		{"friends visible to friend", "friend", models.VisibilityFriends, true},
		{"friends hidden from stranger", "stranger", models.VisibilityFriends, false},
		{"private hidden from friend", "friend", models.VisibilityPrivate, false},
		{"private visible to author", "author", models.VisibilityPrivate, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			moment := models.Moment{Author: "author", Visibility: tc.visibility}
			got, err := fx.service.CanAccess(ctx, tc.viewer, moment)
			if err != nil {
				t.Fatalf("can access: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCreateFansOutByVisibility(t *testing.T) {
	fx := newFeedFixture("author", "friend", "stranger")
	ctx := context.Background()
	if err := fx.friends.AddFriendship(ctx, "author", "friend"); err != nil {
		t.Fatalf("seed friendship: %v", err)
	}

	friend := fx.connect("friend")
	stranger := fx.connect("stranger")
	anonymous := fx.connect("")

	if _, err := fx.service.Create(ctx, "author", "hello world", models.VisibilityPublic, nil); err != nil {
		t.Fatalf("create public: %v", err)
	}
	for name, client := range map[string]*realtime.Client{"friend": friend, "stranger": stranger, "anonymous": anonymous} {
		if names := drainNames(client); len(names) != 1 || names[0] != realtime.EventNewMoment {
			t.Fatalf("expected public post broadcast to %s, got %v", name, names)
		}
	}

	if _, err := fx.service.Create(ctx, "author", "inner circle", models.VisibilityFriends, nil); err != nil {
		t.Fatalf("create friends-only: %v", err)
	}
	if names := drainNames(friend); len(names) != 1 || names[0] != realtime.EventNewMoment {
		t.Fatalf("expected friends-only post delivered to friend, got %v", names)
	}
	if names := drainNames(stranger); len(names) != 0 {
		t.Fatalf("expected nothing for stranger, got %v", names)
	}

	if _, err := fx.service.Create(ctx, "author", "dear diary", models.VisibilityPrivate, nil); err != nil {
		t.Fatalf("create private: %v", err)
	}
	if names := drainNames(friend); len(names) != 0 {
		t.Fatalf("expected no fan-out for private post, got %v", names)
	}
}

func TestCreateValidation(t *testing.T) {
	fx := newFeedFixture("author")
	ctx := context.Background()

	if _, err := fx.service.Create(ctx, "author", "   ", "", nil); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if _, err := fx.service.Create(ctx, "author", "hi", "everyone", nil); !errors.Is(err, ErrBadVisibility) {
		t.Fatalf("expected ErrBadVisibility, got %v", err)
	}
	if _, err := fx.service.Create(ctx, "ghost", "hi", "", nil); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	created, err := fx.service.Create(ctx, "author", "defaults", "", nil)
	if err != nil {
		t.Fatalf("create with defaults: %v", err)
	}
	if created.Visibility != models.VisibilityPublic {
		t.Fatalf("expected default public visibility, got %q", created.Visibility)
	}
	if created.Images == nil {
		t.Fatal("expected images to serialize as an empty list, got nil")
	}
}

func TestListPagination(t *testing.T) {
	fx := newFeedFixture("author", "viewer")
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c", "d", "e"} {
		if _, err := fx.service.Create(ctx, "author", content, models.VisibilityPublic, nil); err != nil {
			t.Fatalf("seed moment %q: %v", content, err)
		}
	}

	listed, pagination, err := fx.service.List(ctx, "viewer", 2, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 moments on page 2, got %d", len(listed))
	}
	if pagination.Current != 2 || pagination.Total != 3 || !pagination.HasMore {
		t.Fatalf("unexpected pagination: %+v", pagination)
	}

	listed, pagination, err = fx.service.List(ctx, "viewer", 3, 2)
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(listed) != 1 || pagination.HasMore {
		t.Fatalf("expected final page of 1 with no more, got %d %+v", len(listed), pagination)
	}

	if _, _, err := fx.service.List(ctx, "ghost", 1, 2); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown viewer, got %v", err)
	}
}

func TestAddCommentAuthorizesAndNotifiesAuthor(t *testing.T) {
	fx := newFeedFixture("author", "friend", "stranger")
	ctx := context.Background()
	if err := fx.friends.AddFriendship(ctx, "author", "friend"); err != nil {
		t.Fatalf("seed friendship: %v", err)
	}

	created, err := fx.service.Create(ctx, "author", "inner circle", models.VisibilityFriends, nil)
	if err != nil {
		t.Fatalf("create moment: %v", err)
	}

	author := fx.connect("author")

	if _, err := fx.service.AddComment(ctx, "stranger", created.ID, "me too"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
	if _, err := fx.service.AddComment(ctx, "friend", created.ID, " "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}

	updated, err := fx.service.AddComment(ctx, "friend", created.ID, "nice one")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}
	if len(updated.Comments) != 1 || updated.Comments[0].Username != "friend" {
		t.Fatalf("expected comment from friend in payload, got %+v", updated.Comments)
	}

	if names := drainNames(author); len(names) != 1 || names[0] != realtime.EventNewComment {
		t.Fatalf("expected author notified with new-comment, got %v", names)
	}
}

func TestToggleLike(t *testing.T) {
	fx := newFeedFixture("author", "viewer")
	ctx := context.Background()

	created, err := fx.service.Create(ctx, "author", "like me", models.VisibilityPublic, nil)
	if err != nil {
		t.Fatalf("create moment: %v", err)
	}

	author := fx.connect("author")

	liked, err := fx.service.ToggleLike(ctx, "viewer", created.ID)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if len(liked.Likes) != 1 || liked.Likes[0].Username != "viewer" {
		t.Fatalf("expected viewer's like in payload, got %+v", liked.Likes)
	}
	if names := drainNames(author); len(names) != 1 || names[0] != realtime.EventNewLike {
		t.Fatalf("expected author notified of the like, got %v", names)
	}

	unliked, err := fx.service.ToggleLike(ctx, "viewer", created.ID)
	if err != nil {
		t.Fatalf("unlike: %v", err)
	}
	if len(unliked.Likes) != 0 {
		t.Fatalf("expected like removed, got %+v", unliked.Likes)
	}
	if names := drainNames(author); len(names) != 0 {
		t.Fatalf("expected no notification for an unlike, got %v", names)
	}
}

func TestDeleteRequiresAuthorAndCleansUp(t *testing.T) {
	fx := newFeedFixture("author", "viewer")
	ctx := context.Background()

	images := []string{"https://img.example/a.jpg", "https://img.example/b.jpg"}
	created, err := fx.service.Create(ctx, "author", "short lived", models.VisibilityPublic, images)
	if err != nil {
		t.Fatalf("create moment: %v", err)
	}

	viewer := fx.connect("viewer")

	if err := fx.service.Delete(ctx, "viewer", created.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-author, got %v", err)
	}

	drainNames(viewer)

	if err := fx.service.Delete(ctx, "author", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := fx.store.FindByID(ctx, created.ID); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected moment removed from store, got %v", err)
	}
	if len(fx.remover.deleted) != 2 {
		t.Fatalf("expected both images deleted, got %v", fx.remover.deleted)
	}
	if names := drainNames(viewer); len(names) != 1 || names[0] != realtime.EventMomentDeleted {
		t.Fatalf("expected moment-deleted broadcast, got %v", names)
	}
}
