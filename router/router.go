// Package router registers all HTTP endpoints using vanilla net/http
// (Go 1.22+ mux) and hosts the websocket handler for live lists.
package router

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/whisper-darkly/coodo-backend/manager"
	"github.com/whisper-darkly/coodo-backend/middleware"
	"github.com/whisper-darkly/coodo-backend/session"
	"github.com/whisper-darkly/coodo-backend/store"
	"github.com/whisper-darkly/coodo-backend/todo"
	"github.com/whisper-darkly/coodo-backend/user"
)

// Deps carries the application services the handlers run on.
type Deps struct {
	Store    store.Store
	Registry *manager.Registry
	Sessions *session.Manager
	Users    *user.HandleGenerator
}

// New builds and returns the application HTTP handler.
//
//	GET    /session         establish or refresh the caller's session
//	POST   /todos           create a list, record membership
//	GET    /todos           the caller's memberships with fresh names
//	DELETE /todos/{id}      forget a membership (list itself stays)
//	GET    /todos/{id}      websocket upgrade, live subscription
//	GET    /health          liveness plus store reachability
func New(deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /session", getSession(deps))

	mux.HandleFunc("POST /todos", createList(deps))
	mux.HandleFunc("GET /todos", listLists(deps))
	mux.HandleFunc("DELETE /todos/{id}", forgetList(deps))
	mux.HandleFunc("GET /todos/{id}", joinList(deps))

	mux.HandleFunc("GET /health", health(deps))

	return middleware.Recover(middleware.Logger(middleware.LoadSession(deps.Sessions)(mux)))
}

// ---- response helpers ----

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// ---- handlers ----

// getSession returns the caller's user, lazily creating the session on the
// first visit. Every visit extends the session by a full lifetime; this is
// the only endpoint that does.
func getSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid := middleware.ContextSessionID(r)
		sess := middleware.ContextSession(r)
		if sess == nil {
			sid = ""
			sess = deps.Sessions.NewSession(user.New(deps.Users))
		} else {
			deps.Sessions.Extend(sess)
		}
		if _, err := deps.Sessions.Save(r.Context(), w, sid, sess); err != nil {
			slog.Error("router: save session", "error", err)
			writeError(w, http.StatusInternalServerError, "saving session failed")
			return
		}
		writeJSON(w, http.StatusOK, sess.User)
	}
}

// createList makes an empty list, persists it immediately so it can be
// joined from a cold start, records membership and returns the id.
func createList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := middleware.ContextSession(r)
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "establish a session first")
			return
		}

		list := todo.NewList()
		if err := deps.Store.StoreList(r.Context(), list); err != nil {
			slog.Error("router: create todo list", "error", err)
			writeError(w, http.StatusInternalServerError, "creating todo list failed")
			return
		}

		sess.JoinList(list.Info())
		if _, err := deps.Sessions.Save(r.Context(), w, middleware.ContextSessionID(r), sess); err != nil {
			slog.Error("router: record membership", "list", list.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "recording membership failed")
			return
		}

		writeJSON(w, http.StatusOK, list.ID)
	}
}

// listLists answers with the session's memberships, names refreshed from
// live actors or the store. No session simply means no memberships.
func listLists(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := middleware.ContextSession(r)
		if sess == nil {
			writeJSON(w, http.StatusOK, []todo.TodoListInfo{})
			return
		}
		writeJSON(w, http.StatusOK, deps.Registry.FillInfos(r.Context(), sess.UserLists))
	}
}

// forgetList drops the membership record. The list document is untouched
// and any open websocket to it stays connected.
func forgetList(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid list id")
			return
		}
		if sess := middleware.ContextSession(r); sess != nil && sess.LeaveList(id) {
			if _, err := deps.Sessions.Save(r.Context(), w, middleware.ContextSessionID(r), sess); err != nil {
				slog.Error("router: forget membership", "list", id, "error", err)
				writeError(w, http.StatusInternalServerError, "updating membership failed")
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func health(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
