// Package gateway routes inbound connection intents to the presence,
// relationship, chat, and feed components, and reports failures back to the
// issuing connection only.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/momentchat/backend/internal/chat"
	"github.com/momentchat/backend/internal/presence"
	"github.com/momentchat/backend/internal/realtime"
	"github.com/momentchat/backend/internal/repositories"
	"github.com/momentchat/backend/internal/social"
)

// Gateway implements realtime.IntentHandler over the domain services.
type Gateway struct {
	presence *presence.Manager
	social   *social.Engine
	chat     *chat.Relay
	registry *realtime.Registry
	logger   *slog.Logger
}

// New constructs the intent gateway.
func New(presenceManager *presence.Manager, socialEngine *social.Engine, relay *chat.Relay, registry *realtime.Registry, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		presence: presenceManager,
		social:   socialEngine,
		chat:     relay,
		registry: registry,
		logger:   logger,
	}
}

// HandleIntent dispatches one decoded client intent.
func (g *Gateway) HandleIntent(ctx context.Context, client *realtime.Client, intent realtime.Intent) {
	switch intent.Name {
	case realtime.IntentLogin:
		g.handleLogin(ctx, client, intent)
	case realtime.IntentLogout:
		g.handleLogout(ctx, client)
	case realtime.IntentGetFriends:
		g.handleGetFriends(ctx, client)
	case realtime.IntentGetFriendRequests:
		g.handleGetRequests(ctx, client)
	case realtime.IntentSendFriendRequest:
		g.handleSendRequest(ctx, client, intent)
	case realtime.IntentAcceptRequest:
		g.handleAcceptRequest(ctx, client, intent)
	case realtime.IntentAddFriend:
		g.handleAddFriend(ctx, client, intent)
	case realtime.IntentChatMessage:
		g.handleChatMessage(ctx, client, intent)
	case realtime.IntentPrivateMessage:
		g.handlePrivateMessage(ctx, client, intent)
	case realtime.IntentLoadPrivateChat:
		g.handleLoadPrivateChat(ctx, client, intent)
	default:
		g.logger.Warn("unknown intent", "client", client.ID(), "intent", intent.Name)
		g.sendError(client, "unknown event")
	}
}

// HandleDisconnect settles the session bound to a dropped connection.
func (g *Gateway) HandleDisconnect(ctx context.Context, client *realtime.Client) {
	g.registry.Unregister(client)
	if username := client.Username(); username != "" {
		g.presence.Settle(ctx, username)
	}
}

func (g *Gateway) handleLogin(ctx context.Context, client *realtime.Client, intent realtime.Intent) {
	var req struct {
		Username string `json:"username"`
	}
	if !g.decode(client, intent, &req) {
		return
	}
	if req.Username == "" {
		g.sendError(client, "username is required")
		return
	}

	if prev := client.Username(); prev != "" && prev != req.Username {
		g.registry.Unbind(prev, client)
	}

	if err := g.presence.Bind(ctx, client, req.Username); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			g.sendError(client, "User not found")
			return
		}
		g.logger.Error("bind session", "username", req.Username, "error", err)
		g.sendError(client, "login failed")
	}
}

func (g *Gateway) handleLogout(ctx context.Context, client *realtime.Client) {
	username := client.Username()
	if username == "" {
		return
	}
	g.registry.Unbind(username, client)
	client.SetUsername("")
	g.presence.Settle(ctx, username)
}

func (g *Gateway) handleGetFriends(ctx context.Context, client *realtime.Client) {
	username, ok := g.requireLogin(client)
	if !ok {
		return
	}
	friends, err := g.social.Friends(ctx, username)
	if err != nil {
		g.logger.Error("list friends", "username", username, "error", err)
		g.sendError(client, "failed to load friends")
		return
	}
	client.Send(realtime.Event{
		Name: realtime.EventUpdateFriends,
		Data: map[string]any{"username": username, "friends": friends},
	})
}

func (g *Gateway) handleGetRequests(ctx context.Context, client *realtime.Client) {
	username, ok := g.requireLogin(client)
	if !ok {
		return
	}
	requests, err := g.social.Requests(ctx, username)
	if err != nil {
		g.logger.Error("list friend requests", "username", username, "error", err)
		g.sendError(client, "failed to load friend requests")
		return
	}
	client.Send(realtime.Event{
		Name: realtime.EventUpdateRequests,
		Data: map[string]any{"username": username, "friendRequests": requests},
	})
}

func (g *Gateway) handleSendRequest(ctx context.Context, client *realtime.Client, intent realtime.Intent) {
	from, ok := g.requireLogin(client)
	if !ok {
		return
	}
	var req struct {
		To string `json:"to"`
	}
	if !g.decode(client, intent, &req) {
		return
	}

	if err := g.social.SendFriendRequest(ctx, from, req.To); err != nil {
		client.Send(realtime.Event{
			Name: realtime.EventFriendRequestError,
			Data: map[string]string{"message": requestErrorMessage(err)},
		})
	}
}

func (g *Gateway) handleAcceptRequest(ctx context.Context, client *realtime.Client, intent realtime.Intent) {
	username, ok := g.requireLogin(client)
	if !ok {
		return
	}
	var req struct {
		From string `json:"from"`
	}
	if !g.decode(client, intent, &req) {
		return
	}

	if err := g.social.AcceptFriendRequest(ctx, req.From, username); err != nil {
		g.logger.Error("accept friend request", "from", req.From, "to", username, "error", err)
		g.sendError(client, "failed to accept friend request")
	}
}

func (g *Gateway) handleAddFriend(ctx context.Context, client *realtime.Client, intent realtime.Intent) {
	username, ok := g.requireLogin(client)
	if !ok {
		return
	}
	var req struct {
		Friend string `json:"friend"`
	}
	if !g.decode(client, intent, &req) {
		return
	}

	if err := g.social.AddFriend(ctx, username, req.Friend); err != nil {
		client.Send(realtime.Event{
			Name: realtime.EventFriendRequestError,
			Data: map[string]string{"message": requestErrorMessage(err)},
		})
	}
}

func (g *Gateway) handleChatMessage(ctx context.Context, client *realtime.Client, intent realtime.Intent) {
	username, ok := g.requireLogin(client)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
		Kind    string `json:"kind"`
	}
	if !g.decode(client, intent, &req) {
		return
	}

	if err := g.chat.SendGroupMessage(ctx, username, req.Message, req.Kind); err != nil {
		g.sendError(client, chatErrorMessage(err))
	}
}

func (g *Gateway) handlePrivateMessage(ctx context.Context, client *realtime.Client, intent realtime.Intent) {
	username, ok := g.requireLogin(client)
	if !ok {
		return
	}
	var req struct {
		To      string `json:"to"`
		Message string `json:"message"`
		Kind    string `json:"kind"`
	}
	if !g.decode(client, intent, &req) {
		return
	}

	if err := g.chat.SendPrivateMessage(ctx, username, req.To, req.Message, req.Kind); err != nil {
		g.sendError(client, chatErrorMessage(err))
	}
}

func (g *Gateway) handleLoadPrivateChat(ctx context.Context, client *realtime.Client, intent realtime.Intent) {
	username, ok := g.requireLogin(client)
	if !ok {
		return
	}
	var req struct {
		To string `json:"to"`
	}
	if !g.decode(client, intent, &req) {
		return
	}

	history, err := g.chat.LoadPrivateHistory(ctx, username, req.To)
	if err != nil {
		g.sendError(client, chatErrorMessage(err))
		return
	}
	client.Send(realtime.Event{
		Name: realtime.EventPrivateChatHistory,
		Data: map[string]any{"from": username, "to": req.To, "messages": history},
	})
}

// requireLogin resolves the bound identity or reports the failure to the
// connection.
func (g *Gateway) requireLogin(client *realtime.Client) (string, bool) {
	username := client.Username()
	if username == "" {
		g.sendError(client, "not logged in")
		return "", false
	}
	return username, true
}

func (g *Gateway) decode(client *realtime.Client, intent realtime.Intent, dst any) bool {
	if len(intent.Data) == 0 {
		g.sendError(client, "missing payload")
		return false
	}
	if err := json.Unmarshal(intent.Data, dst); err != nil {
		g.logger.Warn("bad intent payload", "intent", intent.Name, "client", client.ID(), "error", err)
		g.sendError(client, "malformed payload")
		return false
	}
	return true
}

func (g *Gateway) sendError(client *realtime.Client, message string) {
	client.Send(realtime.Event{
		Name: realtime.EventError,
		Data: map[string]string{"message": message},
	})
}

func requestErrorMessage(err error) string {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return "User not found"
	case errors.Is(err, social.ErrAlreadyFriends):
		return "Already friends"
	case errors.Is(err, social.ErrRequestPending):
		return "Friend request already sent"
	case errors.Is(err, social.ErrSelfRequest):
		return "Cannot send a friend request to yourself"
	}
	return "Failed to send friend request"
}

func chatErrorMessage(err error) string {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return "User not found"
	case errors.Is(err, chat.ErrEmptyBody):
		return "Message body is empty"
	case errors.Is(err, chat.ErrBadKind):
		return "Unsupported message kind"
	}
	return "Failed to send message"
}
