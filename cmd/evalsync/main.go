package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/noah-isme/gema-evalsync/internal/config"
	"github.com/noah-isme/gema-evalsync/internal/engine"
	"github.com/noah-isme/gema-evalsync/internal/logger"
	"github.com/noah-isme/gema-evalsync/internal/notify"
)

// errUsage marks argument errors; main prints the command usage and exits with 2.
var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	global := pflag.NewFlagSet("evalsync", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(stderr)
	global.String("api-url", "", "grading backend base url")
	global.String("poll-interval", "", "interval between submission polls")
	global.String("log-level", "", "log level (debug, info, warn, error)")
	global.String("log-format", "", "log format (json, console)")
	global.String("log-file", "", "optional rotating log file")
	email := global.String("email", os.Getenv("EVALSYNC_EMAIL"), "login email used when no session is stored")
	password := global.String("password", os.Getenv("EVALSYNC_PASSWORD"), "login password used when no session is stored")
	global.Usage = func() { printUsage(stderr, global) }

	if err := global.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	args := global.Args()
	if len(args) == 0 {
		printUsage(stderr, global)
		return 2
	}

	cmd, ok := lookupCommand(args[0])
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printUsage(stderr, global)
		return 2
	}

	cfg, err := config.Load(global)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg, log, engine.Options{})
	if err != nil {
		fmt.Fprintf(stderr, "failed to start: %v\n", err)
		return 1
	}
	defer eng.Close()

	notices, unsubscribe := eng.Notices.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for notice := range notices {
			printNotice(stderr, notice)
		}
	}()

	app := &cli{
		cfg:      cfg,
		engine:   eng,
		out:      stdout,
		email:    *email,
		password: *password,
	}

	err = cmd.run(ctx, app, args[1:])

	unsubscribe()
	<-printed

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "usage: evalsync %s %s\n", cmd.name, cmd.usage)
		return 2
	case errors.Is(err, context.Canceled):
		return 130
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
}

func printUsage(w io.Writer, global *pflag.FlagSet) {
	fmt.Fprintln(w, "usage: evalsync [global flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-15s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "global flags:")
	fmt.Fprint(w, global.FlagUsages())
}

func printNotice(w io.Writer, notice notify.Notice) {
	fmt.Fprintf(w, "[%s] %s\n", notice.Level, notice.Message)
}
