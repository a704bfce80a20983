package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/check-verifier/internal/ai"
	"github.com/zombor/check-verifier/internal/bankapi"
	"github.com/zombor/check-verifier/internal/check"
	"github.com/zombor/check-verifier/internal/classify"
	"github.com/zombor/check-verifier/internal/history"
	"github.com/zombor/check-verifier/internal/pdfdoc"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	port int

	historyBackend string
	dbPath         string
	redisURL       string
	redisPrefix    string
	sqlitePath     string

	storageBackend string
	storagePath    string
	minio          check.MinioConfig

	aiProvider  string
	aiURL       string
	aiKey       string
	textModel   string
	visionModel string
	timeout     time.Duration

	maxUpload        int64
	batchConcurrency int
	rulesPath        string
	reportFont       string

	bankURL string
	bankKey string

	authUser string
	authPass string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("check-verifier")
	var (
		port             = fs.IntLong("port", 8080, "HTTP server port")
		historyBackend   = fs.StringLong("history", "bolt", "History backend: 'bolt', 'redis', 'sqlite' or 'memory'")
		dbPath           = fs.StringLong("db", "check-verifier.db", "Bolt database file path")
		redisURL         = fs.StringLong("redis-url", "redis://localhost:6379/0", "Redis URL for the redis history backend")
		redisPrefix      = fs.StringLong("redis-prefix", "", "Prefix for the redis history key")
		sqlitePath       = fs.StringLong("sqlite", "check-verifier.sqlite", "SQLite database file path")
		storageBackend   = fs.StringLong("storage-backend", "local", "File storage backend: 'local' or 'minio'")
		storagePath      = fs.StringLong("storage", "./checks", "Storage directory path")
		minioEndpoint    = fs.StringLong("minio-endpoint", "localhost:9000", "MinIO endpoint")
		minioAccessKey   = fs.StringLong("minio-access-key", "", "MinIO access key")
		minioSecretKey   = fs.StringLong("minio-secret-key", "", "MinIO secret key")
		minioBucket      = fs.StringLong("minio-bucket", "checks", "MinIO bucket")
		minioSSL         = fs.BoolLong("minio-ssl", "Use TLS for MinIO")
		aiProvider       = fs.StringLong("ai", "openai", "AI provider: 'openai', 'gemini' or 'ollama'")
		aiURL            = fs.StringLong("ai-url", "https://glhf.chat/api/openai/v1", "AI API base URL (openai and ollama)")
		aiKey            = fs.StringLong("ai-key", "", "AI API key (openai and gemini, or set GEMINI_API_KEY env var)")
		textModel        = fs.StringLong("text-model", "hf:meta-llama/Llama-3.3-70B-Instruct", "Model used for the text opinion")
		visionModel      = fs.StringLong("vision-model", "", "Model used for the vision opinion (empty disables vision)")
		timeout          = fs.DurationLong("timeout", 30*time.Second, "AI and bank request timeout")
		maxUpload        = fs.IntLong("max-upload", int(check.DefaultMaxUploadSize), "Maximum upload size in bytes")
		batchConcurrency = fs.IntLong("batch-concurrency", check.DefaultBatchConcurrency, "Files verified at once per request")
		rulesPath        = fs.StringLong("rules", "", "Classifier rules YAML file (optional)")
		reportFont       = fs.StringLong("report-font", "", "UTF-8 TrueType font for exported reports (optional)")
		bankURL          = fs.StringLong("bank-url", "", "Bank API base URL (optional)")
		bankKey          = fs.StringLong("bank-key", "", "Bank API key")
		authUser         = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass         = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion      = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("CHECK_VERIFIER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg := config{
		port:           *port,
		historyBackend: *historyBackend,
		dbPath:         *dbPath,
		redisURL:       *redisURL,
		redisPrefix:    *redisPrefix,
		sqlitePath:     *sqlitePath,
		storageBackend: *storageBackend,
		storagePath:    *storagePath,
		minio: check.MinioConfig{
			Endpoint:  *minioEndpoint,
			AccessKey: *minioAccessKey,
			SecretKey: *minioSecretKey,
			Bucket:    *minioBucket,
			UseSSL:    *minioSSL,
		},
		aiProvider:       *aiProvider,
		aiURL:            *aiURL,
		aiKey:            *aiKey,
		textModel:        *textModel,
		visionModel:      *visionModel,
		timeout:          *timeout,
		maxUpload:        int64(*maxUpload),
		batchConcurrency: *batchConcurrency,
		rulesPath:        *rulesPath,
		reportFont:       *reportFont,
		bankURL:          *bankURL,
		bankKey:          *bankKey,
		authUser:         *authUser,
		authPass:         *authPass,
	}

	if err := run(cfg); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config) error {
	ctx := context.Background()

	slog.Info("Initializing history...", "backend", cfg.historyBackend)
	repo, err := openHistory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing history: %w", err)
	}
	defer repo.Close()

	slog.Info("Initializing storage...", "backend", cfg.storageBackend)
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	slog.Info("Initializing AI...", "provider", cfg.aiProvider, "text_model", cfg.textModel, "vision_model", cfg.visionModel)
	textModel, err := newModel(cfg, cfg.textModel)
	if err != nil {
		return fmt.Errorf("initializing text model: %w", err)
	}
	defer textModel.Close()

	deps := check.Dependencies{
		Extractor: pdfdoc.NewExtractor(),
		Text:      ai.NewTextVerifier(textModel),
		History:   repo,
		Storage:   store,
		Exporter:  newExporter(cfg.reportFont),
	}

	if cfg.visionModel != "" {
		visionModel, err := newModel(cfg, cfg.visionModel)
		if err != nil {
			return fmt.Errorf("initializing vision model: %w", err)
		}
		defer visionModel.Close()
		deps.Vision = ai.NewVisionVerifier(visionModel, pdfdoc.NewRenderer())
	}

	if cfg.rulesPath != "" {
		classifier, err := classify.LoadRules(cfg.rulesPath)
		if err != nil {
			return fmt.Errorf("loading classifier rules: %w", err)
		}
		slog.Info("Loaded classifier rules", "path", cfg.rulesPath, "rules", len(classifier.Rules()))
		deps.Classifier = classifier
	}

	bank := bankapi.NewClient(cfg.bankURL, cfg.bankKey, cfg.timeout)
	if !bank.Configured() {
		slog.Info("Bank API not configured; bank checks will report it")
	}
	deps.Bank = bank

	service := check.NewService(deps, check.Options{
		MaxUploadSize:    cfg.maxUpload,
		BatchConcurrency: cfg.batchConcurrency,
	})

	basicAuth := check.BasicAuth{
		Username: cfg.authUser,
		Password: cfg.authPass,
	}
	server := check.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", cfg.port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"max_upload", humanize.IBytes(uint64(service.MaxUploadSize())),
	)
	if cfg.authUser != "" || cfg.authPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-sigChan:
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func newExporter(fontPath string) *pdfdoc.Exporter {
	exporter := pdfdoc.NewExporter(fontPath)
	if !exporter.Unicode() {
		slog.Warn("No report font configured; Cyrillic text in exported reports will not render", "flag", "--report-font")
	}
	return exporter
}

func openHistory(ctx context.Context, cfg config) (history.Repository, error) {
	switch cfg.historyBackend {
	case "bolt":
		return history.NewBolt(cfg.dbPath)
	case "redis":
		client, err := history.Connect(ctx, cfg.redisURL)
		if err != nil {
			return nil, err
		}
		return history.NewRedis(client, cfg.redisPrefix), nil
	case "sqlite":
		return history.NewSQLite(ctx, cfg.sqlitePath)
	case "memory":
		slog.Warn("Using in-memory history; entries are lost on restart")
		return history.NewMemory(), nil
	}
	return nil, fmt.Errorf("invalid history backend %q (valid: bolt, redis, sqlite, memory)", cfg.historyBackend)
}

func openStorage(ctx context.Context, cfg config) (check.Storage, error) {
	switch cfg.storageBackend {
	case "local":
		return check.NewLocalStorage(cfg.storagePath)
	case "minio":
		return check.NewMinioStorage(ctx, cfg.minio)
	}
	return nil, fmt.Errorf("invalid storage backend %q (valid: local, minio)", cfg.storageBackend)
}

func newModel(cfg config, name string) (ai.Model, error) {
	switch cfg.aiProvider {
	case "openai":
		return ai.NewOpenAI(cfg.aiURL, cfg.aiKey, name, cfg.timeout)
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := cfg.aiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		return ai.NewGemini(apiKey, name, cfg.timeout)
	case "ollama":
		return ai.NewOllama(cfg.aiURL, name, cfg.timeout)
	}
	return nil, fmt.Errorf("invalid AI provider %q (valid: openai, gemini, ollama)", cfg.aiProvider)
}
