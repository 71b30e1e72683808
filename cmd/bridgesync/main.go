package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/sagebionetworks/bridgesdk/internal/commands"
	"github.com/sagebionetworks/bridgesdk/internal/config"
	"github.com/sagebionetworks/bridgesdk/internal/logging"
	"github.com/sagebionetworks/bridgesdk/internal/views"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bridgesync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("BRIDGE_CONFIG"), "path to a YAML config file")
	watch := fs.Bool("watch", false, "keep running and deliver reminders until interrupted")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "bridgesync: %v\n", err)
		return 2
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Fprintf(stderr, "bridgesync: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	if err := logging.InitSentry(cfg.Sentry.DSN, cfg.Sentry.Environment, version); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer logging.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := false
	if f, ok := stdout.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd())
	}
	a, err := newApp(ctx, cfg, logger, stdout, interactive)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		fmt.Fprintln(stderr, views.RenderError(err))
		return 1
	}
	defer a.close()

	input := strings.Join(fs.Args(), " ")
	if input == "" && !*watch {
		input = string(commands.TypeHelp)
	}
	if input != "" {
		if code := execute(ctx, a, input, stdout, stderr); code != 0 {
			return code
		}
	}
	if *watch {
		logger.Info("watching reminders")
		if err := a.watch(ctx); err != nil {
			fmt.Fprintln(stderr, views.RenderError(err))
			return 1
		}
	}
	return 0
}

func execute(ctx context.Context, a *app, input string, stdout, stderr io.Writer) int {
	cmd, err := commands.Parse(input)
	if err != nil {
		fmt.Fprintln(stderr, views.RenderError(err))
		return 2
	}
	res, err := commands.Execute(ctx, cmd, a.handlers())
	if res.Message != "" {
		fmt.Fprintln(stdout, res.Message)
	}
	if err != nil {
		a.logger.Debug("command failed", zap.String("command", string(cmd.Type)), zap.Error(err))
		fmt.Fprintln(stderr, views.RenderError(err))
		return 1
	}
	return 0
}
