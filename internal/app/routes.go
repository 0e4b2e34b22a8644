package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"request-governor/internal/handlers"
	"request-governor/internal/middleware"
	"request-governor/internal/ratelimit"
)

// Router builds the middleware chain and routes. Requests flow through
// request logging, the terminal-response observer, the global rate-limit
// policy and invalidation coordination; read routes additionally pass the
// response cache and sensitive routes their own stricter policies.
func (app *App) Router() *mux.Router {
	cfg := app.Config

	global := ratelimit.Policy{
		Name:    "global",
		Limit:   cfg.GlobalLimit,
		Window:  cfg.GlobalWindow,
		Message: "too many requests",
	}
	auth := ratelimit.Policy{
		Name:           "auth",
		Limit:          cfg.AuthLimit,
		Window:         cfg.AuthWindow,
		FailClosed:     true,
		SkipSuccessful: true,
		Message:        "too many failed attempts",
	}
	mutate := ratelimit.Policy{
		Name:       "mutate",
		Limit:      cfg.MutateLimit,
		Window:     cfg.MutateWindow,
		FailClosed: true,
		Message:    "too many changes, slow down",
	}

	r := mux.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.Observe)
	r.Use(app.Engine.Middleware(global, app.Identity))
	r.Use(app.Invalidator.Middleware)

	cached := app.Cache.Middleware(handlers.UsersNamespace, cfg.CacheTTL, nil)
	authLimited := app.Engine.Middleware(auth, app.Identity)
	mutateLimited := app.Engine.Middleware(mutate, app.Identity)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", app.Handlers.Health).Methods(http.MethodGet)

	api.Handle("/users", cached(http.HandlerFunc(app.Handlers.ListUsers))).Methods(http.MethodGet)
	api.Handle("/users/{id:[0-9]+}", cached(http.HandlerFunc(app.Handlers.GetUser))).Methods(http.MethodGet)
	api.Handle("/users", mutateLimited(http.HandlerFunc(app.Handlers.CreateUser))).Methods(http.MethodPost)
	api.Handle("/users/{id:[0-9]+}", mutateLimited(http.HandlerFunc(app.Handlers.UpdateUser))).Methods(http.MethodPut)
	api.Handle("/users/{id:[0-9]+}", mutateLimited(http.HandlerFunc(app.Handlers.DeleteUser))).Methods(http.MethodDelete)

	api.Handle("/auth/login", authLimited(http.HandlerFunc(app.Handlers.Login))).Methods(http.MethodPost)

	return r
}
