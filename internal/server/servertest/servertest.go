// Package servertest starts the development backend on a loopback port for end-to-end tests.
package servertest

import (
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-evalsync/internal/config"
	"github.com/noah-isme/gema-evalsync/internal/database"
	"github.com/noah-isme/gema-evalsync/internal/server"
	"github.com/noah-isme/gema-evalsync/pkg/ai"
)

// Secret signs tokens issued by test servers.
const Secret = "servertest-secret"

// Server is a running development backend.
type Server struct {
	*server.Server
	URL string
}

// Options tunes the test server. Zero values give the heuristic grader without delay.
type Options struct {
	Evaluator    ai.Evaluator
	GradingDelay time.Duration
}

// Start launches a server backed by a private in-memory sqlite database. It is shut down
// when the test finishes.
func Start(t testing.TB, opts Options) *Server {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Connect(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cfg := config.Config{
		AppName:        "evalsync-test",
		AppEnv:         "test",
		JWTSecret:      Secret,
		GradingDelay:   opts.GradingDelay,
		GradingWorkers: 2,
	}

	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = ai.NewHeuristicEvaluator()
	}

	srv, err := server.New(cfg, db, server.Options{Evaluator: evaluator, Logger: zerolog.Nop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = srv.App.Listener(listener)
	}()

	t.Cleanup(func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = srv.Shutdown(shutdownCtx)
		cancel()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &Server{Server: srv, URL: "http://" + listener.Addr().String()}
}
