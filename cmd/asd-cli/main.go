package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ad/go-telegram-screening/internal/backend"
	"github.com/ad/go-telegram-screening/internal/cli"
	"github.com/ad/go-telegram-screening/internal/config"
	"github.com/ad/go-telegram-screening/internal/imaging"
	"github.com/ad/go-telegram-screening/internal/logging"
	"github.com/ad/go-telegram-screening/internal/questionnaire"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	backendURL := flag.String("backend", cfg.BackendURL, "ASD backend base URL")
	capture := flag.String("capture", cfg.CaptureCommand, "shell command printing one camera frame to stdout")
	logLevel := flag.String("log-level", "warn", "log level")
	history := flag.Bool("history", false, "list the assessments stored on the backend and exit")
	flag.Parse()

	logger, err := logging.New(logging.Options{Level: *logLevel, Env: cfg.AppEnv, OutputPaths: []string{"stderr"}})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := backend.New(*backendURL, cfg.BackendTimeout, backend.WithLogger(logger.Named("backend")))
	if err := client.Ping(ctx); err != nil {
		logger.Warn("backend is not reachable", zap.String("url", *backendURL), zap.Error(err))
	}

	if *history {
		assessments, err := client.ListAssessments(ctx)
		if err != nil {
			logger.Fatal("failed to list assessments", zap.Error(err))
		}
		fmt.Print(cli.FormatHistory(assessments))
		return
	}

	opts := []cli.Option{
		cli.WithEncoder(imaging.NewEncoder(cfg.FrameMaxWidth, cfg.FrameMaxHeight, cfg.JPEGQuality)),
		cli.WithLogger(logger.Named("cli")),
	}
	if *capture != "" {
		opts = append(opts, cli.WithCamera(cli.CommandCamera{Command: *capture}))
	}

	runner := cli.NewRunner(cli.NewSurveyDriver(os.Stdout), questionnaire.MustLoad(), client, opts...)
	if _, err := runner.Run(ctx); err != nil {
		if errors.Is(err, cli.ErrAborted) || errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Assessment cancelled.")
			os.Exit(130)
		}
		logger.Error("assessment failed", zap.Error(err))
		os.Exit(1)
	}
}
