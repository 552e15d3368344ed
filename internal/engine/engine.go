package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evalsync/internal/apiclient"
	"github.com/noah-isme/gema-evalsync/internal/bulk"
	"github.com/noah-isme/gema-evalsync/internal/config"
	"github.com/noah-isme/gema-evalsync/internal/lifecycle"
	"github.com/noah-isme/gema-evalsync/internal/loader"
	"github.com/noah-isme/gema-evalsync/internal/notify"
	"github.com/noah-isme/gema-evalsync/internal/poller"
	"github.com/noah-isme/gema-evalsync/internal/session"
	"github.com/noah-isme/gema-evalsync/internal/store"
)

// Options overrides collaborators that are otherwise built from configuration.
type Options struct {
	HTTPClient   *http.Client
	SessionStore session.Store
	Notifiers    []notify.Notifier
}

// Engine owns every client-side component for one process. It replaces global state: views
// and commands receive the engine rather than reaching for singletons.
type Engine struct {
	Store     *store.Store
	Client    apiclient.Client
	Session   *session.Manager
	Notices   *notify.Broker
	Poller    *poller.Poller
	Bulk      *bulk.Coordinator
	Lifecycle *lifecycle.Controller

	logger  zerolog.Logger
	closers []func() error

	mu        sync.Mutex
	views     map[viewCloser]struct{}
	closeOnce sync.Once
}

type viewCloser interface {
	Close()
}

// New wires the engine from configuration. Redis session persistence and NATS notice
// publishing are enabled when their URLs are configured.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts Options) (*Engine, error) {
	e := &Engine{
		Store:   store.New(logger),
		Notices: notify.NewBroker(),
		logger:  logger.With().Str("component", "engine").Logger(),
		views:   make(map[viewCloser]struct{}),
	}

	sessionStore := opts.SessionStore
	if sessionStore == nil && cfg.SessionRedis != "" {
		redisClient, err := session.ConnectRedis(ctx, cfg.SessionRedis)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		e.closers = append(e.closers, redisClient.Close)
		sessionStore = session.NewRedisStore(redisClient, cfg.SessionKey)
	}

	e.Session = session.NewManager(sessionStore, logger)
	if err := e.Session.Restore(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("failed to restore session")
	}

	notifiers := notify.Multi{e.Notices, notify.NewLogNotifier(logger)}
	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		e.closers = append(e.closers, func() error {
			conn.Close()
			return nil
		})
		notifiers = append(notifiers, notify.NewNATSNotifier(conn, cfg.NoticeSubject, logger))
	}
	notifiers = append(notifiers, opts.Notifiers...)

	e.Client = apiclient.New(apiclient.Options{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.HTTPTimeout,
		RateLimit:  cfg.HTTPRateLimit,
		HTTPClient: opts.HTTPClient,
		Session:    e.Session,
		Notifier:   notifiers,
		Logger:     logger,
	})

	ld := loader.New(e.Client, e.Store, logger)
	validate := validator.New(validator.WithRequiredStructEnabled())

	e.Poller = poller.New(e.Client, e.Store, cfg.PollInterval, logger)
	e.Bulk = bulk.New(e.Client, ld, e.Store, notifiers, logger)
	e.Lifecycle = lifecycle.New(e.Client, ld, e.Store, notifiers, validate, logger)

	return e, nil
}

func (e *Engine) track(view viewCloser) {
	e.mu.Lock()
	e.views[view] = struct{}{}
	e.mu.Unlock()
}

func (e *Engine) untrack(view viewCloser) {
	e.mu.Lock()
	delete(e.views, view)
	e.mu.Unlock()
}

// Close tears down every open view and releases connections.
func (e *Engine) Close() error {
	var errs []error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		views := make([]viewCloser, 0, len(e.views))
		for view := range e.views {
			views = append(views, view)
		}
		e.mu.Unlock()

		for _, view := range views {
			view.Close()
		}

		for i := len(e.closers) - 1; i >= 0; i-- {
			if err := e.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
