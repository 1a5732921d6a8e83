package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"docsummary/internal/app"
	"docsummary/internal/auth"
	"docsummary/internal/config"
	"docsummary/internal/ratelimit"
	"docsummary/internal/server"
	"docsummary/internal/util"
	"docsummary/pkg/ai"
	"docsummary/pkg/extract"
	"docsummary/pkg/storage"
	"docsummary/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	blobs, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("failed to init blob storage: %v", err)
	}
	repo, err := newDocumentStore(cfg)
	if err != nil {
		log.Fatalf("failed to init document store: %v", err)
	}
	summarizer := newSummarizer(cfg)

	appCore, err := app.New(app.Config{
		Store:      repo,
		Blobs:      blobs,
		Extractor:  extract.NewTextExtractor(),
		Summarizer: summarizer,
		SummarizeOptions: ai.Options{
			Model:     cfg.SummarizerModel,
			MaxTokens: cfg.SummarizerMaxTokens,
		},
		ProcessConcurrency: cfg.ProcessConcurrency,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var verifier *auth.Verifier
	if cfg.AuthSecret != "" {
		verifier, err = auth.NewVerifier(auth.Config{
			Secret:   cfg.AuthSecret,
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
		})
		if err != nil {
			log.Fatalf("failed to init token verifier: %v", err)
		}
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "",
			cfg.UploadRateLimit, cfg.UploadRateWindow(),
		)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:                 appCore,
		TokenVerifier:       verifier,
		UploadLimiter:       limiter,
		MaxUploadBytes:      cfg.MaxUploadBytes,
		AllowedContentTypes: cfg.AllowedContentTypes,
		TrustForwarded:      cfg.TrustForwardedHeaders,
		ProcessOnUpload:     cfg.ProcessOnUpload,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening",
		"addr", addr,
		"storageBackend", cfg.StorageBackend,
		"summarizerProvider", cfg.SummarizerProvider,
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newBlobStore(cfg config.FileConfig) (storage.BlobStore, error) {
	if cfg.StorageBackend == config.BackendMinio {
		return storage.NewMinioStore(
			cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
			cfg.MinioBucket, cfg.MinioUseSSL,
		)
	}
	return storage.NewFileStore(cfg.StoragePath)
}

func newDocumentStore(cfg config.FileConfig) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		return store.NewGormStore(cfg.DatabaseURL)
	}
	slog.Warn("no databaseURL configured, using in-memory document store")
	return store.NewMemoryStore(), nil
}

func newSummarizer(cfg config.FileConfig) ai.Summarizer {
	if cfg.SummarizerProvider == config.ProviderOllama {
		return ai.NewOllamaSummarizer(
			cfg.SummarizerBaseURL, cfg.SummarizerModel,
			cfg.SummarizerMaxInputRunes, cfg.SummarizerTimeout(),
		)
	}
	return ai.NewOpenAISummarizer(
		cfg.SummarizerBaseURL, cfg.SummarizerAPIKey, cfg.SummarizerModel,
		cfg.SummarizerMaxInputRunes, cfg.SummarizerTimeout(),
	)
}
