package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Record is a resource item whose shape the CLI does not need to know
type Record map[string]any

// Resource is a REST collection following the backend's uniform
// list/create/update/delete conventions
type Resource[T any] struct {
	c    *Client
	path string
}

// NewResource binds a collection path such as "/notices"
func NewResource[T any](c *Client, path string) *Resource[T] {
	return &Resource[T]{c: c, path: path}
}

// List returns the collection, optionally filtered by query parameters
func (r *Resource[T]) List(ctx context.Context, query url.Values) ([]T, error) {
	endpoint := r.path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var items []T
	if err := r.c.Request(ctx, http.MethodGet, endpoint, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Get returns a single item
func (r *Resource[T]) Get(ctx context.Context, id string) (*T, error) {
	var item T
	if err := r.c.Request(ctx, http.MethodGet, r.itemPath(id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create posts a new item. body may be a *Multipart for uploads.
func (r *Resource[T]) Create(ctx context.Context, body any) (*T, error) {
	var item T
	if err := r.c.Request(ctx, http.MethodPost, r.path, body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Update replaces fields of an existing item
func (r *Resource[T]) Update(ctx context.Context, id string, body any) (*T, error) {
	var item T
	if err := r.c.Request(ctx, http.MethodPut, r.itemPath(id), body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete removes an item
func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	return r.c.Request(ctx, http.MethodDelete, r.itemPath(id), nil, nil)
}

func (r *Resource[T]) itemPath(id string) string {
	return fmt.Sprintf("%s/%s", r.path, url.PathEscape(id))
}

// ResourcePaths lists the domain collections exposed by the backend
var ResourcePaths = map[string]string{
	"attendance": "/attendance",
	"notices":    "/notices",
	"exams":      "/exams",
	"placements": "/placements",
	"users":      "/users",
	"gigs":       "/gigs",
	"reviews":    "/reviews",
	"alerts":     "/alerts",
	"activity":   "/activity",
	"chat-rooms": "/chat/rooms",
	"tasks":      "/tasks",
}

// Alert is an item of the /alerts feed
type Alert struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatRoom is a chat room; broadcast rooms accept messages from admins only
type ChatRoom struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Broadcast bool   `json:"broadcast"`
}

// ChatMessage is a message in a room
type ChatMessage struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Alerts returns the alerts collection
func (c *Client) Alerts() *Resource[Alert] {
	return NewResource[Alert](c, "/alerts")
}

// ChatRooms returns the chat rooms collection
func (c *Client) ChatRooms() *Resource[ChatRoom] {
	return NewResource[ChatRoom](c, "/chat/rooms")
}

// ChatMessages returns the messages collection of one room
func (c *Client) ChatMessages(roomID string) *Resource[ChatMessage] {
	return NewResource[ChatMessage](c, fmt.Sprintf("/chat/rooms/%s/messages", url.PathEscape(roomID)))
}
