package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/digkill/productshot/internal/admin"
	"github.com/digkill/productshot/internal/api"
	"github.com/digkill/productshot/internal/config"
	"github.com/digkill/productshot/internal/database"
	"github.com/digkill/productshot/internal/imagegen"
	"github.com/digkill/productshot/internal/kie"
	"github.com/digkill/productshot/internal/maintenance"
	"github.com/digkill/productshot/internal/quota"
	"github.com/digkill/productshot/internal/repository"
	"github.com/digkill/productshot/internal/rules"
	"github.com/digkill/productshot/internal/service"
	"github.com/digkill/productshot/internal/session"
	"github.com/digkill/productshot/internal/storage"
	"github.com/digkill/productshot/internal/telegram"
	"github.com/digkill/productshot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		log.Fatalf("data dir: %v", err)
	}

	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	logr := logger.New(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := rules.Load(cfg.RulesFile)
	if err != nil {
		log.Fatalf("rules: %v", err)
	}

	var (
		store   quota.Store
		audit   service.AuditLogger
		history admin.History
	)
	switch cfg.LedgerBackend {
	case config.LedgerMySQL:
		db := mustOpenDB(ctx, cfg.MySQLDSN)
		defer db.Close()
		store = repository.NewUsageRepository(db)
		generations := repository.NewGenerationRepository(db)
		audit, history = generations, generations
	default:
		store = quota.NewFileStore(cfg.UsageFile)
	}

	var console *telegram.Console
	tracker := quota.NewTracker(store, cfg.DailyLimit, logr,
		quota.WithLocation(cfg.Location),
		quota.WithRetention(cfg.RetentionDays),
		quota.WithFailureHook(func(err error) {
			if console != nil {
				console.Alert(err)
			}
		}),
	)
	if cfg.TelegramBotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Fatalf("telegram bot: %v", err)
		}
		console = telegram.NewConsole(botAPI, cfg.TelegramAdminChatIDs, tracker, logr)
	}

	var objects service.ObjectStore
	var uploader *storage.Uploader
	if cfg.StorageEnabled() {
		uploader, err = storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		objects = uploader
	}

	generator, analyzer, factory := mustBackend(ctx, cfg, uploader, logr)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.GenerationRatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.GenerationRatePerMinute)), 2)
	}

	generationService := service.NewGenerationService(service.Dependencies{
		Log:          logr,
		Rules:        engine,
		Tracker:      tracker,
		Generator:    generator,
		Analyzer:     analyzer,
		Factory:      factory,
		Limiter:      limiter,
		Audit:        audit,
		Store:        objects,
		MaxAttempts:  cfg.MaxAttempts,
		RetryInitial: cfg.RetryInitialInterval,
	})

	pruneJob, err := maintenance.NewPruneJob(cfg.PruneSchedule, cfg.Location, tracker, logr)
	if err != nil {
		log.Fatalf("prune job: %v", err)
	}
	pruneJob.Start(ctx)

	var notifier admin.Notifier
	if console != nil {
		notifier = console
		go func() {
			if err := console.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logr.Error("telegram console stopped", "err", err)
			}
		}()
	}

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, tracker, history, notifier)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	apiServer := api.NewServer(api.Options{
		Addr:           cfg.ListenAddr,
		AccessPassword: cfg.AccessPassword,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RunTTL:         cfg.RunTTL,
	}, logr, session.NewManager(cfg.SessionTTL), generationService)

	logr.Info("productshot starting",
		"image_backend", cfg.ImageBackend, "ledger", cfg.LedgerBackend,
		"daily_limit", tracker.DailyLimit(), "storage", cfg.StorageEnabled(), "telegram", console != nil)
	if err := apiServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("api server stopped", "err", err)
	}
}

func mustOpenDB(ctx context.Context, dsn string) *sql.DB {
	db, err := database.Connect(dsn)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}
	return db
}

func mustBackend(ctx context.Context, cfg config.Config, uploader *storage.Uploader, logr *slog.Logger) (imagegen.Generator, imagegen.Analyzer, imagegen.Factory) {
	geminiCfg := imagegen.GeminiConfig{
		APIKey:        cfg.GeminiAPIKey,
		ImageModel:    cfg.ImageModel,
		AnalysisModel: cfg.AnalysisModel,
		Timeout:       cfg.RequestTimeout,
	}

	var analyzer imagegen.Analyzer
	if cfg.GeminiAPIKey != "" {
		gemini, err := imagegen.NewGeminiClient(ctx, geminiCfg, logr)
		if err != nil {
			log.Fatalf("gemini client: %v", err)
		}
		analyzer = gemini
		if cfg.ImageBackend == config.BackendGemini {
			return gemini, analyzer, imagegen.GeminiFactory(geminiCfg, logr)
		}
	}

	if uploader == nil {
		log.Fatalf("kie backend requires S3 storage")
	}
	kieClient := kie.NewClient(cfg, uploader, logr)
	return kieClient, analyzer, kieClient.Factory()
}
