/*
handlers.go - HTTP API handlers for the rewards engine

PURPOSE:
  Exposes the ledger, event, promotion and account services over REST.
  Handlers parse the request, call exactly one service operation and
  serialize the result. Authorization and every business rule live in the
  services; the handlers never decide who may do what.

ARCHITECTURE:
  Handler struct holds the services, all built over one loyalty.TxStore:
  - Ledger:     purchases, adjustments, redemptions, transfers, awards
  - Events:     event lifecycle, organizers, guests
  - Promotions: promotion CRUD
  - Accounts:   registration, profiles, role changes
  - Auth:       login, password resets
  - Assistant:  help-desk chat (disabled until a model is set)

REQUEST FLOW:
  1. Authenticate (middleware.go) puts the caller in the context
  2. Parse path, query and body
  3. Call the service with the caller as actor
  4. Serialize the response (dto.go) or map the error (errors.go)

SEE ALSO:
  - dto.go:        request/response data structures
  - server.go:     router setup and middleware
  - middleware.go: bearer-token authentication
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campus/rewards-engine/account"
	"github.com/campus/rewards-engine/assistant"
	"github.com/campus/rewards-engine/auth"
	"github.com/campus/rewards-engine/event"
	"github.com/campus/rewards-engine/ledger"
	"github.com/campus/rewards-engine/loyalty"
	"github.com/campus/rewards-engine/promotion"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      loyalty.TxStore
	Tokens     *auth.Tokens
	Auth       *auth.Service
	Accounts   *account.Service
	Ledger     *ledger.Engine
	Events     *event.Service
	Promotions *promotion.Service
	Assistant  *assistant.Service
}

// NewHandler wires every service over store.
func NewHandler(store loyalty.TxStore, tokens *auth.Tokens) *Handler {
	authSvc := auth.NewService(store, tokens)
	return &Handler{
		Store:      store,
		Tokens:     tokens,
		Auth:       authSvc,
		Accounts:   account.NewService(store, authSvc),
		Ledger:     ledger.NewEngine(store),
		Events:     event.NewService(store),
		Promotions: promotion.NewService(store),
		Assistant:  assistant.NewService(store),
	}
}

// SetClock points every service at now.
func (h *Handler) SetClock(now func() time.Time) {
	h.Tokens.Now = now
	h.Auth.Now = now
	h.Accounts.Now = now
	h.Ledger.Now = now
	h.Events.Now = now
	h.Promotions.Now = now
	h.Assistant.Now = now
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return loyalty.Invalid("", "invalid request body: %v", err)
	}
	return nil
}

func urlParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(urlParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, loyalty.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// query reads typed query parameters and keeps the first parse error.
type query struct {
	v   url.Values
	err error
}

func newQuery(r *http.Request) *query { return &query{v: r.URL.Query()} }

func (q *query) str(key string) string { return strings.TrimSpace(q.v.Get(key)) }

func (q *query) boolean(key string) *bool {
	s := q.str(key)
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		q.fail(loyalty.Invalid(key, "must be true or false"))
		return nil
	}
	return &b
}

func (q *query) int64(key string) *int64 {
	s := q.str(key)
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		q.fail(loyalty.Invalid(key, "must be an integer"))
		return nil
	}
	return &n
}

func (q *query) positive(key string) int {
	n := q.int64(key)
	if n == nil {
		return 0
	}
	if *n <= 0 {
		q.fail(loyalty.Invalid(key, "must be a positive integer"))
		return 0
	}
	return int(*n)
}

func (q *query) page() loyalty.Page {
	return loyalty.Page{Page: q.positive("page"), Limit: q.positive("limit")}
}

func (q *query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}
