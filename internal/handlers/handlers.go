// Package handlers implements the demo API surface the governance layer
// fronts: user CRUD over an in-memory table, a login endpoint and a health
// check. The relational store behind a real deployment is out of scope
// here; these handlers exist to exercise the middleware chain end to end.
package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"request-governor/internal/cache"
	"request-governor/internal/common/errors"
)

// UsersNamespace is the cache namespace for user read endpoints.
const UsersNamespace = "users"

const tokenLifetime = 24 * time.Hour

// User is a row in the demo user table.
type User struct {
	ID        int       `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Options configures the handler set.
type Options struct {
	// JWTSecret signs login tokens
	JWTSecret []byte
	// Credentials maps email to password for the login endpoint
	Credentials map[string]string
	// Health reports the governance store's health
	Health func() error
}

// Handlers holds the demo API state.
type Handlers struct {
	mu     sync.RWMutex
	users  map[int]*User
	nextID int

	jwtSecret []byte
	creds     map[string]string
	health    func() error
}

func New(opts Options) *Handlers {
	return &Handlers{
		users:     make(map[int]*User),
		nextID:    1,
		jwtSecret: opts.JWTSecret,
		creds:     opts.Credentials,
		health:    opts.Health,
	}
}

// Health reports service and store health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListUsers returns all users ordered by ID
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	users := make([]*User, 0, len(h.users))
	for _, u := range h.users {
		users = append(users, u)
	}
	h.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	writeJSON(w, http.StatusOK, users)
}

// GetUser returns a single user by ID
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	h.mu.RLock()
	user, ok := h.users[id]
	h.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, errors.NotFoundError("user"))
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type userRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CreateUser adds a user and invalidates the whole users cache namespace
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.ValidationError("invalid request body"))
		return
	}
	if req.Email == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.ValidationError("email and name are required"))
		return
	}

	h.mu.Lock()
	user := &User{
		ID:        h.nextID,
		Email:     req.Email,
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	h.users[user.ID] = user
	h.nextID++
	h.mu.Unlock()

	cache.Declare(r, cache.Target{Namespace: UsersNamespace, Wildcard: true})
	writeJSON(w, http.StatusCreated, user)
}

// UpdateUser modifies a user and invalidates its cache entries
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.ValidationError("invalid request body"))
		return
	}

	h.mu.Lock()
	user, ok := h.users[id]
	if ok {
		if req.Email != "" {
			user.Email = req.Email
		}
		if req.Name != "" {
			user.Name = req.Name
		}
	}
	h.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, errors.NotFoundError("user"))
		return
	}

	cache.Declare(r, cache.Target{
		Namespace: UsersNamespace,
		Keys:      []string{"/api/users", "/api/users/" + strconv.Itoa(id)},
	})
	writeJSON(w, http.StatusOK, user)
}

// DeleteUser removes a user and invalidates its cache entries
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])

	h.mu.Lock()
	_, ok := h.users[id]
	delete(h.users, id)
	h.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, errors.NotFoundError("user"))
		return
	}

	cache.Declare(r, cache.Target{
		Namespace: UsersNamespace,
		Keys:      []string{"/api/users", "/api/users/" + strconv.Itoa(id)},
	})
	w.WriteHeader(http.StatusNoContent)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and issues a signed token. Failed attempts
// count against the auth rate-limit policy; successes do not.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.ValidationError("invalid request body"))
		return
	}

	password, ok := h.creds[req.Email]
	if !ok || password != req.Password {
		writeError(w, http.StatusUnauthorized, errors.AuthError("invalid credentials"))
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   req.Email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	})

	signed, err := token.SignedString(h.jwtSecret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.InternalError("failed to sign token", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": signed})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err *errors.AppError) {
	writeJSON(w, status, map[string]string{"error": err.Message})
}
