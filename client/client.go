// Package client is a Go client for the coodo-backend API: the session and
// list endpoints plus live websocket subscriptions. The integration tests
// run on it; it works as a standalone library too.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/whisper-darkly/coodo-backend/todo"
	"github.com/whisper-darkly/coodo-backend/user"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client talks to one coodo-backend instance. The session cookie lives in
// an internal jar, so one Client is one browser-like identity; make several
// to simulate several users.
type Client struct {
	base string
	http *http.Client
}

// New returns a Client for the server at base, e.g. "http://127.0.0.1:8000".
func New(base string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}, nil
}

// Session establishes or refreshes the caller's session and returns its user.
func (c *Client) Session(ctx context.Context) (user.User, error) {
	var u user.User
	err := c.do(ctx, http.MethodGet, "/session", &u)
	return u, err
}

// CreateList makes a new empty list and returns its id.
func (c *Client) CreateList(ctx context.Context) (uuid.UUID, error) {
	var id uuid.UUID
	err := c.do(ctx, http.MethodPost, "/todos", &id)
	return id, err
}

// Lists returns the caller's memberships with refreshed names.
func (c *Client) Lists(ctx context.Context) ([]todo.TodoListInfo, error) {
	var infos []todo.TodoListInfo
	err := c.do(ctx, http.MethodGet, "/todos", &infos)
	return infos, err
}

// ForgetList removes id from the caller's memberships. The list itself and
// any open subscription to it are untouched.
func (c *Client) ForgetList(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/todos/"+id.String(), nil)
}

// Health checks the server's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil)
}

// JoinList opens a live subscription to the list. The first snapshot
// arrives once the server has applied the caller's join.
func (c *Client) JoinList(ctx context.Context, id uuid.UUID) (*ListSession, error) {
	u := "ws" + strings.TrimPrefix(c.base, "http") + "/todos/" + id.String()
	dialer := websocket.Dialer{
		Jar:              c.http.Jar,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			err = &APIError{Status: resp.StatusCode, Message: err.Error()}
		}
		return nil, fmt.Errorf("join list %s: %w", id, err)
	}
	return &ListSession{conn: conn}, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			apiErr.Message = body.Error
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ---- live subscription ----

// ListSession is one open websocket subscription. Send and Next may be used
// from different goroutines; writes are serialised internally.
type ListSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Send submits one command frame.
func (s *ListSession) Send(cmd todo.Command) error {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.BinaryMessage, raw)
}

// Next blocks for the next snapshot. A server-side close surfaces as a
// *websocket.CloseError.
func (s *ListSession) Next(timeout time.Duration) (todo.TodoList, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
	var list todo.TodoList
	if err := s.conn.ReadJSON(&list); err != nil {
		return todo.TodoList{}, err
	}
	return list, nil
}

// Close performs a best-effort graceful close: a close frame first, so the
// server sends the goodbye on the user's behalf, then the connection itself.
func (s *ListSession) Close() error {
	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return s.conn.Close()
}
