package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/momentchat/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	user := models.User{
		Username:  "alice",
		Password:  "secret-hash",
		Email:     "alice@example.com",
		Bio:       "hello",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := user
	dup.Password = "another-hash"
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict when creating duplicate username, got %v", err)
	}

	fetched, err := repo.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find by username: %v", err)
	}
	if fetched.Email != user.Email || fetched.Password != user.Password || fetched.Bio != user.Bio {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}
	if fetched.Online() {
		t.Fatal("expected fresh user to be offline")
	}

	if err := repo.UpdateProfile(ctx, "alice", "new@example.com", "updated bio"); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	fetched, err = repo.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find after update: %v", err)
	}
	if fetched.Email != "new@example.com" || fetched.Bio != "updated bio" {
		t.Fatalf("expected updated fields to persist, got %+v", fetched)
	}

	if err := repo.UpdateProfile(ctx, "ghost", "x@example.com", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing user, got %v", err)
	}
	if _, err := repo.FindByUsername(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestPostgresUserRepository_SessionSettlement(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	createTestUser(t, repo, "alice")

	loginAt := time.Now().UTC().Add(-10 * time.Minute).Truncate(time.Millisecond)
	if err := repo.RecordLogin(ctx, "alice", loginAt); err != nil {
		t.Fatalf("record login: %v", err)
	}

	fetched, err := repo.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find after login: %v", err)
	}
	if !fetched.Online() || !fetched.LoginTime.Equal(loginAt) {
		t.Fatalf("expected login time %v, got %+v", loginAt, fetched.LoginTime)
	}

	if err := repo.Settle(ctx, "alice", 600, 10); err != nil {
		t.Fatalf("settle: %v", err)
	}

	fetched, err = repo.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find after settle: %v", err)
	}
	if fetched.OnlineTime != 600 || fetched.Points != 10 {
		t.Fatalf("expected 600s and 10 points, got online=%d points=%d", fetched.OnlineTime, fetched.Points)
	}
	if fetched.Online() {
		t.Fatal("expected login time cleared after settlement")
	}

	// A second settle finds no open session and must not double-award.
	if err := repo.Settle(ctx, "alice", 600, 10); err != nil {
		t.Fatalf("settle again: %v", err)
	}
	fetched, _ = repo.FindByUsername(ctx, "alice")
	if fetched.OnlineTime != 600 || fetched.Points != 10 {
		t.Fatalf("expected totals unchanged after second settle, got online=%d points=%d", fetched.OnlineTime, fetched.Points)
	}
}

func TestPostgresUserRepository_AddMessagePoints(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	createTestUser(t, repo, "alice")

	points, err := repo.AddMessagePoints(ctx, "alice")
	if err != nil {
		t.Fatalf("add message points: %v", err)
	}
	if points != 1 {
		t.Fatalf("expected 1 point, got %d", points)
	}

	points, err = repo.AddMessagePoints(ctx, "alice")
	if err != nil {
		t.Fatalf("add message points again: %v", err)
	}
	if points != 2 {
		t.Fatalf("expected 2 points, got %d", points)
	}

	fetched, _ := repo.FindByUsername(ctx, "alice")
	if fetched.MessagesSent != 2 {
		t.Fatalf("expected 2 messages sent, got %d", fetched.MessagesSent)
	}

	if _, err := repo.AddMessagePoints(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestPostgresFriendRepository_RequestsAndFriendships(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	createTestUser(t, userRepo, "alice")
	createTestUser(t, userRepo, "bob")
	createTestUser(t, userRepo, "carol")

	repo := NewPostgresFriendRepository(testPool)

	if err := repo.CreateRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("create friend request: %v", err)
	}
	if err := repo.CreateRequest(ctx, "alice", "bob"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate request, got %v", err)
	}
	if err := repo.CreateRequest(ctx, "alice", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown receiver, got %v", err)
	}

	pending, err := repo.ListRequests(ctx, "bob")
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(pending) != 1 || pending[0] != "alice" {
		t.Fatalf("expected pending request from alice, got %v", pending)
	}

	accepted, err := repo.AcceptRequest(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("accept request: %v", err)
	}
	if !accepted {
		t.Fatal("expected the pending request to be consumed")
	}

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		ok, err := repo.AreFriends(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("are friends: %v", err)
		}
		if !ok {
			t.Fatalf("expected %s -> %s edge to exist", pair[0], pair[1])
		}
	}

	pending, _ = repo.ListRequests(ctx, "bob")
	if len(pending) != 0 {
		t.Fatalf("expected no pending requests after accept, got %v", pending)
	}

	accepted, err = repo.AcceptRequest(ctx, "carol", "bob")
	if err != nil {
		t.Fatalf("accept missing request: %v", err)
	}
	if accepted {
		t.Fatal("expected accepting a missing request to be a no-op")
	}

	if err := repo.AddFriendship(ctx, "alice", "carol"); err != nil {
		t.Fatalf("add friendship: %v", err)
	}
	// Re-adding must not fail or duplicate.
	if err := repo.AddFriendship(ctx, "carol", "alice"); err != nil {
		t.Fatalf("re-add friendship: %v", err)
	}

	friends, err := repo.ListFriends(ctx, "alice")
	if err != nil {
		t.Fatalf("list friends: %v", err)
	}
	if len(friends) != 2 || friends[0] != "bob" || friends[1] != "carol" {
		t.Fatalf("expected [bob carol], got %v", friends)
	}
}

func TestPostgresMessageRepository_CreateAndListBetween(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	createTestUser(t, userRepo, "alice")
	createTestUser(t, userRepo, "bob")
	createTestUser(t, userRepo, "carol")

	repo := NewPostgresMessageRepository(testPool)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	seed := []models.Message{
		{ID: uuid.NewString(), From: "alice", To: "bob", Body: "one", Kind: models.MessageKindText, CreatedAt: base},
		{ID: uuid.NewString(), From: "bob", To: "alice", Body: "two", Kind: models.MessageKindAudio, CreatedAt: base.Add(time.Minute)},
		{ID: uuid.NewString(), From: "alice", To: "carol", Body: "other", Kind: models.MessageKindText, CreatedAt: base.Add(2 * time.Minute)},
		{ID: uuid.NewString(), From: "alice", Body: "to the room", Kind: models.MessageKindText, CreatedAt: base.Add(3 * time.Minute)},
		{ID: uuid.NewString(), From: "alice", To: "bob", Body: "three", Kind: models.MessageKindText, CreatedAt: base.Add(4 * time.Minute)},
	}
	for _, message := range seed {
		if err := repo.Create(ctx, message); err != nil {
			t.Fatalf("create message %q: %v", message.Body, err)
		}
	}

	conversation, err := repo.ListBetween(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(conversation) != 3 {
		t.Fatalf("expected 3 messages between alice and bob, got %d", len(conversation))
	}
	for i, want := range []string{"one", "two", "three"} {
		if conversation[i].Body != want {
			t.Fatalf("expected message %d to be %q, got %q", i, want, conversation[i].Body)
		}
	}
	if conversation[1].Kind != models.MessageKindAudio {
		t.Fatalf("expected audio kind preserved, got %s", conversation[1].Kind)
	}
	if conversation[0].Group() {
		t.Fatal("expected direct messages only in a conversation")
	}
}

func TestPostgresMomentRepository_VisibilityAndPagination(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	createTestUser(t, userRepo, "author")
	createTestUser(t, userRepo, "friend")
	createTestUser(t, userRepo, "stranger")

	friendRepo := NewPostgresFriendRepository(testPool)
	if err := friendRepo.AddFriendship(ctx, "author", "friend"); err != nil {
		t.Fatalf("seed friendship: %v", err)
	}

	repo := NewPostgresMomentRepository(testPool)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	seed := []models.Moment{
		{ID: uuid.NewString(), Author: "author", Content: "public one", Visibility: models.VisibilityPublic, CreatedAt: base},
		{ID: uuid.NewString(), Author: "author", Content: "friends only", Visibility: models.VisibilityFriends, Images: []string{"https://img.example/a.jpg"}, CreatedAt: base.Add(time.Minute)},
		{ID: uuid.NewString(), Author: "author", Content: "private note", Visibility: models.VisibilityPrivate, CreatedAt: base.Add(2 * time.Minute)},
		{ID: uuid.NewString(), Author: "stranger", Content: "public two", Visibility: models.VisibilityPublic, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, moment := range seed {
		if err := repo.Create(ctx, moment); err != nil {
			t.Fatalf("create moment %q: %v", moment.Content, err)
		}
	}

	listed, total, err := repo.ListVisible(ctx, "friend", 1, 10)
	if err != nil {
		t.Fatalf("list for friend: %v", err)
	}
	if total != 3 || len(listed) != 3 {
		t.Fatalf("expected 3 moments for friend, got total=%d len=%d", total, len(listed))
	}
	if listed[0].Content != "public two" {
		t.Fatalf("expected newest first, got %q", listed[0].Content)
	}
	if listed[1].Content != "friends only" || len(listed[1].Images) != 1 {
		t.Fatalf("expected friends-only moment with its image, got %+v", listed[1])
	}

	_, total, err = repo.ListVisible(ctx, "stranger", 1, 10)
	if err != nil {
		t.Fatalf("list for stranger: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected stranger to see 2 public moments, got %d", total)
	}

	_, total, err = repo.ListVisible(ctx, "author", 1, 10)
	if err != nil {
		t.Fatalf("list for author: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected author to see all 4, got %d", total)
	}

	page, total, err := repo.ListVisible(ctx, "author", 2, 3)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if total != 4 || len(page) != 1 {
		t.Fatalf("expected a final page of 1 of 4, got total=%d len=%d", total, len(page))
	}
}

func TestPostgresMomentRepository_LikesCommentsAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	createTestUser(t, userRepo, "author")
	createTestUser(t, userRepo, "viewer")

	repo := NewPostgresMomentRepository(testPool)

	moment := models.Moment{
		ID:         uuid.NewString(),
		Author:     "author",
		Content:    "like and comment",
		Visibility: models.VisibilityPublic,
		Images:     []string{"https://img.example/a.jpg", "https://img.example/b.jpg"},
		CreatedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := repo.Create(ctx, moment); err != nil {
		t.Fatalf("create moment: %v", err)
	}

	added, err := repo.AddLike(ctx, moment.ID, models.Like{Username: "viewer", CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("add like: %v", err)
	}
	if !added {
		t.Fatal("expected first like to be new")
	}

	added, err = repo.AddLike(ctx, moment.ID, models.Like{Username: "viewer", CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("re-add like: %v", err)
	}
	if added {
		t.Fatal("expected duplicate like to be ignored")
	}

	comment := models.Comment{
		ID:        uuid.NewString(),
		Username:  "viewer",
		Content:   "nice",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := repo.AddComment(ctx, moment.ID, comment); err != nil {
		t.Fatalf("add comment: %v", err)
	}

	fetched, err := repo.FindByID(ctx, moment.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if len(fetched.Images) != 2 || len(fetched.Likes) != 1 || len(fetched.Comments) != 1 {
		t.Fatalf("expected hydrated moment, got images=%d likes=%d comments=%d", len(fetched.Images), len(fetched.Likes), len(fetched.Comments))
	}
	if !fetched.LikedBy("viewer") {
		t.Fatal("expected viewer's like to be visible")
	}

	if err := repo.RemoveLike(ctx, moment.ID, "viewer"); err != nil {
		t.Fatalf("remove like: %v", err)
	}
	fetched, _ = repo.FindByID(ctx, moment.ID)
	if fetched.LikedBy("viewer") {
		t.Fatal("expected like removed")
	}

	if err := repo.Delete(ctx, moment.ID); err != nil {
		t.Fatalf("delete moment: %v", err)
	}
	if _, err := repo.FindByID(ctx, moment.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE moment_comments, moment_likes, moment_images, moments, messages, friend_requests, friendships, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, username string) models.User {
	t.Helper()
	user := models.User{
		Username:  username,
		Password:  "password-hash",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}
