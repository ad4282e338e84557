package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/idilsaglam/tada/internal/auth"
	"github.com/idilsaglam/tada/internal/backend"
	"github.com/idilsaglam/tada/internal/model"
)

const maxBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type nameBody struct {
	Name string `json:"name"`
}

type textBody struct {
	Text string `json:"text"`
}

type emailBody struct {
	Email string `json:"email"`
}

type inviteBody struct {
	TTLSeconds int64 `json:"ttl_seconds,omitempty"`
}

type profileBody struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

type acceptedBody struct {
	ListID string `json:"list_id"`
}

type idsBody struct {
	IDs []string `json:"ids"`
}

// DefaultInviteTTL applies when a request names none.
const DefaultInviteTTL = 7 * 24 * time.Hour

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusOf maps an error to its HTTP status and wire code.
func StatusOf(err error) (int, string) {
	if model.IsValidation(err) {
		return http.StatusBadRequest, "invalid"
	}
	switch code := model.CodeOf(err); code {
	case model.CodeNotFound:
		return http.StatusNotFound, code
	case model.CodeConflict:
		return http.StatusConflict, code
	case model.CodeInvalidInvite:
		return http.StatusBadRequest, code
	default:
		return http.StatusInternalServerError, code
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusOf(err)
	if status >= 500 {
		s.logger.Error("request failed", "method", r.Method, "url", r.URL, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.Invalid("body", err.Error())
	}
	return nil
}

func user(r *http.Request) string {
	uid, _ := auth.UserFrom(r.Context())
	return uid
}

func (s *Server) putProfile(w http.ResponseWriter, r *http.Request) {
	var body profileBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.store.UpsertProfile(r.Context(), model.Profile{
		ID:          user(r),
		Email:       body.Email,
		DisplayName: body.DisplayName,
		AvatarURL:   body.AvatarURL,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) getLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.store.ListLists(r.Context(), user(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (s *Server) postList(w http.ResponseWriter, r *http.Request) {
	var body nameBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	l, err := s.store.CreateList(r.Context(), body.Name, user(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) getList(w http.ResponseWriter, r *http.Request) {
	l, err := s.store.GetList(r.Context(), mux.Vars(r)["list"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) patchList(w http.ResponseWriter, r *http.Request) {
	var body nameBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	l, err := s.store.RenameList(r.Context(), mux.Vars(r)["list"], body.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) deleteList(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteList(r.Context(), mux.Vars(r)["list"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getMembers(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Members(r.Context(), mux.Vars(r)["list"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) getShares(w http.ResponseWriter, r *http.Request) {
	shares, err := s.store.ListShares(r.Context(), mux.Vars(r)["list"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

func (s *Server) postShare(w http.ResponseWriter, r *http.Request) {
	var body emailBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	sh, err := s.store.ShareByEmail(r.Context(), mux.Vars(r)["list"], body.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

func (s *Server) deleteShare(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteShare(r.Context(), mux.Vars(r)["share"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postInvite(w http.ResponseWriter, r *http.Request) {
	var body inviteBody
	if r.ContentLength != 0 {
		if err := decode(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	ttl := time.Duration(body.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	inv, err := s.store.CreateInvite(r.Context(), mux.Vars(r)["list"], user(r), ttl)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) acceptInvite(w http.ResponseWriter, r *http.Request) {
	listID, err := s.store.AcceptInvite(r.Context(), mux.Vars(r)["token"], user(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptedBody{ListID: listID})
}

func (s *Server) getTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := s.store.ListTodos(r.Context(), mux.Vars(r)["list"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

func (s *Server) postTodo(w http.ResponseWriter, r *http.Request) {
	var body textBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.store.CreateTodo(r.Context(), mux.Vars(r)["list"], body.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) deleteCompleted(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.DeleteCompleted(r.Context(), mux.Vars(r)["list"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, idsBody{IDs: ids})
}

func (s *Server) patchTodo(w http.ResponseWriter, r *http.Request) {
	var u backend.TodoUpdate
	if err := decode(r, &u); err != nil {
		s.fail(w, r, err)
		return
	}
	if u.Text == nil && u.Completion == nil && u.Position == nil {
		s.fail(w, r, model.Invalid("body", "nothing to update"))
		return
	}
	t, err := s.store.UpdateTodo(r.Context(), mux.Vars(r)["todo"], u)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTodo(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTodo(r.Context(), mux.Vars(r)["todo"]); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) {
	listID := mux.Vars(r)["list"]
	if _, err := s.store.GetList(r.Context(), listID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.feed.ServeList(w, r, listID)
}
