// Package client talks to a tada server over HTTP and implements the
// backend store interfaces on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/model"
)

var _ backend.Store = (*Store)(nil)

// Store is a backend.Store served by a remote tada server.
type Store struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New targets baseURL and authenticates with token.
func New(baseURL, token string, hc *http.Client) (*Store, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Store{base: u, token: token, http: hc}, nil
}

type wireError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Store) do(ctx context.Context, op, method string, path []string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.base.JoinPath(path...).String(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return &model.BackendError{Op: op, Code: model.CodeTransport, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return decodeError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.BackendError{Op: op, Code: model.CodeTransport, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func decodeError(op string, resp *http.Response) error {
	var we wireError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &we) != nil || we.Error == "" {
		we.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	cause := fmt.Errorf("%s", we.Error)
	switch {
	case resp.StatusCode == http.StatusBadRequest && we.Code == "invalid":
		return &model.ValidationError{Field: "request", Reason: we.Error}
	case we.Code != "":
		return &model.BackendError{Op: op, Code: we.Code, Err: cause}
	case resp.StatusCode == http.StatusNotFound:
		return &model.BackendError{Op: op, Code: model.CodeNotFound, Err: cause}
	case resp.StatusCode == http.StatusConflict:
		return &model.BackendError{Op: op, Code: model.CodeConflict, Err: cause}
	}
	return &model.BackendError{Op: op, Code: model.CodeInternal, Err: cause}
}

func (s *Store) ListTodos(ctx context.Context, listID string) ([]model.Todo, error) {
	var out []model.Todo
	err := s.do(ctx, "list todos", http.MethodGet, []string{"lists", listID, "todos"}, nil, &out)
	return out, err
}

func (s *Store) CreateTodo(ctx context.Context, listID, text string) (model.Todo, error) {
	var out model.Todo
	err := s.do(ctx, "create todo", http.MethodPost, []string{"lists", listID, "todos"}, map[string]string{"text": text}, &out)
	return out, err
}

func (s *Store) UpdateTodo(ctx context.Context, id string, u backend.TodoUpdate) (model.Todo, error) {
	var out model.Todo
	err := s.do(ctx, "update todo", http.MethodPatch, []string{"todos", id}, u, &out)
	return out, err
}

func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	return s.do(ctx, "delete todo", http.MethodDelete, []string{"todos", id}, nil, nil)
}

func (s *Store) DeleteCompleted(ctx context.Context, listID string) ([]string, error) {
	var out struct {
		IDs []string `json:"ids"`
	}
	err := s.do(ctx, "delete completed", http.MethodDelete, []string{"lists", listID, "todos", "completed"}, nil, &out)
	return out.IDs, err
}

// ListLists ignores userID: the server answers for the token's user.
func (s *Store) ListLists(ctx context.Context, _ string) ([]model.List, error) {
	var out []model.List
	err := s.do(ctx, "list lists", http.MethodGet, []string{"lists"}, nil, &out)
	return out, err
}

func (s *Store) GetList(ctx context.Context, id string) (model.List, error) {
	var out model.List
	err := s.do(ctx, "get list", http.MethodGet, []string{"lists", id}, nil, &out)
	return out, err
}

// CreateList ignores ownerID: the server owns the list to the token's user.
func (s *Store) CreateList(ctx context.Context, name, _ string) (model.List, error) {
	var out model.List
	err := s.do(ctx, "create list", http.MethodPost, []string{"lists"}, map[string]string{"name": name}, &out)
	return out, err
}

func (s *Store) RenameList(ctx context.Context, id, name string) (model.List, error) {
	var out model.List
	err := s.do(ctx, "rename list", http.MethodPatch, []string{"lists", id}, map[string]string{"name": name}, &out)
	return out, err
}

func (s *Store) DeleteList(ctx context.Context, id string) error {
	return s.do(ctx, "delete list", http.MethodDelete, []string{"lists", id}, nil, nil)
}

func (s *Store) ListShares(ctx context.Context, listID string) ([]model.Share, error) {
	var out []model.Share
	err := s.do(ctx, "list shares", http.MethodGet, []string{"lists", listID, "shares"}, nil, &out)
	return out, err
}

func (s *Store) ShareByEmail(ctx context.Context, listID, email string) (model.Share, error) {
	var out model.Share
	err := s.do(ctx, "share", http.MethodPost, []string{"lists", listID, "shares"}, map[string]string{"email": email}, &out)
	return out, err
}

func (s *Store) DeleteShare(ctx context.Context, shareID string) error {
	return s.do(ctx, "unshare", http.MethodDelete, []string{"shares", shareID}, nil, nil)
}

func (s *Store) Members(ctx context.Context, listID string) ([]model.Profile, error) {
	var out []model.Profile
	err := s.do(ctx, "members", http.MethodGet, []string{"lists", listID, "members"}, nil, &out)
	return out, err
}

// UpsertProfile saves the token user's profile; p.ID is ignored.
func (s *Store) UpsertProfile(ctx context.Context, p model.Profile) (model.Profile, error) {
	var out model.Profile
	body := map[string]string{"email": p.Email, "display_name": p.DisplayName, "avatar_url": p.AvatarURL}
	err := s.do(ctx, "profile", http.MethodPut, []string{"me"}, body, &out)
	return out, err
}

// CreateInvite ignores createdBy: invites are authored by the token's user.
func (s *Store) CreateInvite(ctx context.Context, listID, _ string, ttl time.Duration) (model.InviteLink, error) {
	var out model.InviteLink
	body := map[string]int64{"ttl_seconds": int64(ttl / time.Second)}
	err := s.do(ctx, "invite", http.MethodPost, []string{"lists", listID, "invites"}, body, &out)
	return out, err
}

// AcceptInvite joins the token's user; userID is ignored.
func (s *Store) AcceptInvite(ctx context.Context, token, _ string) (string, error) {
	var out struct {
		ListID string `json:"list_id"`
	}
	err := s.do(ctx, "accept invite", http.MethodPost, []string{"invites", token, "accept"}, nil, &out)
	return out.ListID, err
}
