// Package app wires the governance components together and runs the
// service.
package app

import (
	"request-governor/internal/cache"
	"request-governor/internal/common/logging"
	"request-governor/internal/config"
	"request-governor/internal/handlers"
	"request-governor/internal/ratelimit"
	"request-governor/internal/redis"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Redis       *redis.Client
	Cache       *cache.ResponseCache
	Invalidator *cache.Coordinator
	Engine      *ratelimit.Engine
	Identity    ratelimit.Identity
	Handlers    *handlers.Handlers
	Logger      logging.Logger
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
	}

	redisClient, err := redis.NewClient(&redis.Config{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		return nil, err
	}
	app.Redis = redisClient

	app.Cache = cache.New(redisClient)
	app.Invalidator = cache.NewCoordinator(app.Cache)
	app.Engine = ratelimit.NewEngine(redisClient)
	app.Identity = ratelimit.Identity{JWTSecret: []byte(cfg.JWTSecret)}

	app.Handlers = handlers.New(handlers.Options{
		JWTSecret: []byte(cfg.JWTSecret),
		// demo account; a real deployment resolves credentials from the
		// relational user store, which is outside this service
		Credentials: map[string]string{"admin@example.com": "governor-demo"},
		Health:      redisClient.Health,
	})

	return app, nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Redis != nil {
		app.Redis.Close()
	}
}
