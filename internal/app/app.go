// Package app assembles filmbot from its configuration: storage, sessions,
// events, metrics and the Telegram surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/filmbot/core/bootstrap"
	coredatabase "github.com/m3rciful/filmbot/core/database"
	"github.com/m3rciful/filmbot/core/logger"
	tg "github.com/m3rciful/filmbot/core/telegram"
	"github.com/m3rciful/filmbot/core/telegram/router"
	"github.com/m3rciful/filmbot/core/telegram/state"
	"github.com/m3rciful/filmbot/internal/bot"
	"github.com/m3rciful/filmbot/internal/catalog"
	"github.com/m3rciful/filmbot/internal/config"
	"github.com/m3rciful/filmbot/internal/conversation"
	"github.com/m3rciful/filmbot/internal/events"
	"github.com/m3rciful/filmbot/internal/flow"
	"github.com/m3rciful/filmbot/internal/metrics"
	"github.com/m3rciful/filmbot/migrations"
)

// App owns every long-lived resource of a running bot.
type App struct {
	cfg       *config.Config
	db        *sqlx.DB
	store     *catalog.Store
	redis     *redis.Client
	sessions  state.Manager[flow.State]
	publisher events.Publisher
	collector *metrics.Collector
	engine    *conversation.Engine
	bot       *bot.Bot
	registry  *tg.Registry
	server    *metrics.Server
}

// Setup runs the bootstrap pipeline: logger, migrations, connection and genre seeding.
func Setup(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
		Migrate: func(dbc coredatabase.Config) error {
			return coredatabase.RunMigrations(dbc, migrations.FS)
		},
		Seeders: []bootstrap.Seeder{GenreSeeder()},
	})
	if err != nil {
		return nil, err
	}
	return res.DB, nil
}

// GenreSeeder inserts the default genres that are missing.
func GenreSeeder() bootstrap.Seeder {
	return bootstrap.SeederFunc{
		Label: "genres",
		Fn: func(ctx context.Context, db *sqlx.DB) error {
			_, err := catalog.NewStore(db).SeedGenres(ctx)
			return err
		},
	}
}

// Build prepares the database and assembles the application.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := Setup(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a, err := Assemble(ctx, cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// Assemble wires the application on top of an open database.
func Assemble(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*App, error) {
	a := &App{
		cfg:       cfg,
		db:        db,
		store:     catalog.NewStore(db),
		collector: metrics.New(),
		publisher: events.Nop{},
		registry:  tg.NewRegistry(),
	}

	switch cfg.Sessions.Backend {
	case config.BackendRedis:
		r := cfg.Sessions.Redis
		client, err := state.DialRedis(ctx, r.Addr, r.Password, r.DB)
		if err != nil {
			return nil, fmt.Errorf("app: sessions: %w", err)
		}
		a.redis = client
		a.sessions = state.NewRedisManager[flow.State](client,
			state.WithPrefix(r.Prefix),
			state.WithTTL(cfg.Sessions.TTL),
		)
	default:
		a.sessions = state.NewMemoryManager[flow.State](cfg.Sessions.TTL)
	}

	if cfg.Events.URL != "" {
		p := events.NewAMQPPublisher(cfg.Events.URL, cfg.Events.Queue)
		if err := p.Connect(); err != nil {
			logger.Warn(ctx, "service.events", "connect",
				slog.String("status", "error"),
				logger.Err(err),
			)
		}
		a.publisher = p
	}

	a.engine = conversation.New(a.store, a.sessions,
		conversation.WithPublisher(a.publisher),
		conversation.WithObserver(a.collector),
	)
	a.bot = bot.New(a.engine, bot.Options{
		AdminID:        cfg.Telegram.AdminID,
		RestrictWrites: cfg.Catalog.RestrictWrites,
	})
	if err := a.bot.Register(a.registry); err != nil {
		_ = a.release(ctx)
		return nil, fmt.Errorf("app: register handlers: %w", err)
	}

	logger.Info(ctx, "app", "assembled",
		slog.String("sessions", cfg.Sessions.Backend),
		slog.Bool("events", cfg.Events.URL != ""),
		slog.Bool("metrics", cfg.Metrics.Listen != ""),
		slog.Bool("restrict_writes", cfg.Catalog.RestrictWrites),
	)
	return a, nil
}

// TelegramRunOptions describes how the core runtime should run the bot.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()
	return tg.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Middlewares: tg.DefaultMiddlewares(core, a.bot.Limited),
		Routes:      a.bot.Routes(a.registry),
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

// Checks lists the dependencies /healthz probes.
func (a *App) Checks() map[string]metrics.HealthFunc {
	checks := map[string]metrics.HealthFunc{"database": a.store.Ping}
	if a.redis != nil {
		checks["sessions"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	return checks
}

func (a *App) start(ctx context.Context, rt tg.Runtime) error {
	router.OnHandled(a.collector.Handled)
	if rt.Dispatcher != nil {
		a.collector.WatchSenderErrors(rt.Dispatcher.ErrorCount)
	}
	if a.cfg.Metrics.Listen == "" {
		return nil
	}
	srv, err := metrics.Listen(a.cfg.Metrics.Listen, metrics.Handler(a.collector, a.Checks()))
	if err != nil {
		return fmt.Errorf("app: metrics listener: %w", err)
	}
	a.server = srv
	srv.Serve()
	return nil
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	router.OnHandled(nil)
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
		a.server = nil
	}
	errs = append(errs, a.release(ctx))
	return errors.Join(errs...)
}

// release closes the publisher, the session backend and the database.
func (a *App) release(ctx context.Context) error {
	var errs []error
	if err := a.publisher.Close(); err != nil && !errors.Is(err, events.ErrClosed) {
		errs = append(errs, fmt.Errorf("events close: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
		a.redis = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db close: %w", err))
		}
		a.db = nil
	}
	err := errors.Join(errs...)
	if err != nil {
		logger.Warn(ctx, "app", "release", logger.Err(err))
	}
	return err
}
