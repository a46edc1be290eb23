package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ad/go-telegram-screening/internal/backend"
	"github.com/ad/go-telegram-screening/internal/config"
	"github.com/ad/go-telegram-screening/internal/db"
	"github.com/ad/go-telegram-screening/internal/handlers"
	"github.com/ad/go-telegram-screening/internal/health"
	"github.com/ad/go-telegram-screening/internal/imaging"
	"github.com/ad/go-telegram-screening/internal/logging"
	"github.com/ad/go-telegram-screening/internal/questionnaire"
	"github.com/ad/go-telegram-screening/internal/services"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Env: cfg.AppEnv})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	sqlDB, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	defer sqlDB.Close()

	dbQueue := db.NewDBQueue(sqlDB)
	defer dbQueue.Close()

	userRepo := db.NewUserRepository(dbQueue)
	draftRepo := db.NewDraftRepository(dbQueue)
	submissionRepo := db.NewSubmissionRepository(dbQueue)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	b, err := bot.New(cfg.BotToken, bot.WithHTTPClient(15*time.Second, httpClient))
	if err != nil {
		logger.Fatal("failed to create bot", zap.Error(err))
	}

	botInfo, err := connect(ctx, b, logger)
	if err != nil {
		logger.Fatal("failed to get bot info after 3 attempts", zap.Error(err))
	}

	apiClient := backend.New(cfg.BackendURL, cfg.BackendTimeout, backend.WithLogger(logger.Named("backend")))
	encoder := imaging.NewEncoder(cfg.FrameMaxWidth, cfg.FrameMaxHeight, cfg.JPEGQuality)

	errorManager := services.NewErrorManager(b, cfg.AdminID, logger.Named("errors"))
	msgManager := services.NewMessageManager(b, errorManager)
	sessions := services.NewSessionManager(draftRepo, apiClient, encoder, logger.Named("session"))
	formatter := services.NewFormatter(questionnaire.MustLoad())

	handler := handlers.NewBotHandler(
		b,
		cfg.AdminID,
		errorManager,
		msgManager,
		sessions,
		formatter,
		userRepo,
		submissionRepo,
		services.NewStatisticsService(dbQueue),
		apiClient,
		httpClient,
		logger.Named("bot"),
	)

	b.RegisterHandlerMatchFunc(func(update *tgmodels.Update) bool {
		return true
	}, handler.HandleUpdate, logMiddleware(logger.Named("updates")))

	if cfg.HealthAddr != "" {
		checks := map[string]health.Checker{
			"database": health.CheckFunc(func(context.Context) error { return dbQueue.Ping() }),
			"backend":  health.CheckFunc(apiClient.Ping),
		}
		go func() {
			if err := health.Serve(ctx, cfg.HealthAddr, health.NewHandler(checks, logger.Named("health"))); err != nil {
				logger.Error("health server stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("bot started",
		zap.String("username", botInfo.Username),
		zap.Int64("admin_id", cfg.AdminID),
		zap.String("db", cfg.DBPath),
		zap.String("backend", cfg.BackendURL),
	)

	b.Start(ctx)
}

// connect retries getMe with a short timeout.
func connect(ctx context.Context, b *bot.Bot, logger *zap.Logger) (*tgmodels.User, error) {
	var err error
	for i := 0; i < 3; i++ {
		logger.Info("connecting to Telegram API", zap.Int("attempt", i+1))
		getMeCtx, getMeCancel := context.WithTimeout(ctx, 10*time.Second)
		var botInfo *tgmodels.User
		botInfo, err = b.GetMe(getMeCtx)
		getMeCancel()
		if err == nil {
			return botInfo, nil
		}
		logger.Warn("failed to get bot info", zap.Int("attempt", i+1), zap.Error(err))
		if i < 2 {
			time.Sleep(2 * time.Second)
		}
	}
	return nil, err
}

func formatUser(u tgmodels.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if u.Username != "" {
		name += " @" + u.Username
	}
	return fmt.Sprintf("%s [%d]", name, u.ID)
}

func logMiddleware(logger *zap.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
			if msg := update.Message; msg != nil && msg.From != nil {
				fields := []zap.Field{zap.String("from", formatUser(*msg.From)), zap.String("text", msg.Text)}
				if len(msg.Photo) > 0 || msg.Document != nil {
					fields = append(fields, zap.Bool("media", true))
				}
				logger.Info("message", fields...)
			}
			if cb := update.CallbackQuery; cb != nil {
				logger.Info("callback", zap.String("from", formatUser(cb.From)), zap.String("data", cb.Data))
			}
			next(ctx, b, update)
		}
	}
}
