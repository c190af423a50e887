package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	facade "github.com/giantswarm/mcp-oauth-facade"
	"github.com/giantswarm/mcp-oauth-facade/instrumentation"
	"github.com/giantswarm/mcp-oauth-facade/storage"
	"github.com/giantswarm/mcp-oauth-facade/storage/memory"
	"github.com/giantswarm/mcp-oauth-facade/storage/valkey"
	"github.com/giantswarm/mcp-oauth-facade/token"
	"github.com/giantswarm/mcp-oauth-facade/upstream"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the facade HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	keyPair, err := loadOrGenerateKeyPair(cfg, logger)
	if err != nil {
		return err
	}
	signer := token.NewKeyPairSigner(keyPair)

	provider, err := upstream.New(upstream.Config{
		ClientID:              cfg.Upstream.ClientID,
		ClientSecret:          cfg.Upstream.ClientSecret,
		RedirectURL:           cfg.Upstream.RedirectURL,
		AuthorizationEndpoint: cfg.Upstream.AuthorizationEndpoint,
		TokenEndpoint:         cfg.Upstream.TokenEndpoint,
		Scopes:                cfg.DefaultScopes,
		RequestTimeout:        cfg.upstreamTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to configure upstream provider: %w", err)
	}

	keyCache, err := upstream.NewKeyCache(upstream.KeyCacheConfig{
		JWKSEndpoint: cfg.Upstream.JWKSEndpoint,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to configure upstream key cache: %w", err)
	}

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName: "mcp-oauth-facade",
		Enabled:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	keyCache.SetInstrumentation(inst)

	flowStore, err := buildFlowStore(cfg, logger, inst)
	if err != nil {
		return err
	}

	server, err := facade.NewServer(provider, flowStore, keyCache, signer, cfg.serverConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer func() { _ = server.Close() }()
	server.SetInstrumentation(inst)

	handler := facade.NewHandler(server, facade.HandlerConfig{
		RateLimitPerSecond: cfg.Server.RateLimit,
		RateLimitBurst:     cfg.Server.RateLimitBurst,
		Instrumentation:    inst,
		Logger:             logger,
	})
	defer handler.Close()

	mux := http.NewServeMux()
	handler.RegisterEndpoints(mux)

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("facade listening", "addr", cfg.Server.Listen, "issuer", cfg.Issuer)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return inst.Shutdown(shutdownCtx)
}

// loadOrGenerateKeyPair loads the signing key from the configured PEM file,
// generating and persisting a fresh RSA-2048 key when the file does not exist.
func loadOrGenerateKeyPair(cfg *fileConfig, logger *slog.Logger) (*token.KeyPair, error) {
	path := cfg.Signing.PrivateKeyFile
	if path == "" {
		logger.Warn("no signing key file configured, generating an ephemeral key; minted tokens will not survive restarts")
		return token.GenerateKeyPair(cfg.Signing.KeyID, 2048)
	}

	pemData, err := os.ReadFile(path)
	if err == nil {
		return token.LoadKeyPairFromPEM(cfg.Signing.KeyID, pemData)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	keyPair, err := token.GenerateKeyPair(cfg.Signing.KeyID, 2048)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, keyPair.ExportPrivateKeyPEM(), 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist signing key: %w", err)
	}
	logger.Info("generated new signing key", "path", path, "key_id", cfg.Signing.KeyID)
	return keyPair, nil
}

func buildFlowStore(cfg *fileConfig, logger *slog.Logger, inst *instrumentation.Instrumentation) (storage.FlowStore, error) {
	switch cfg.Storage.Backend {
	case "", "memory":
		store := memory.New()
		store.SetLogger(logger)
		store.SetInstrumentation(inst)
		return store, nil
	case "valkey":
		return valkey.New(valkey.Config{
			Address:  cfg.Storage.Valkey.Address,
			Password: cfg.Storage.Valkey.Password,
			DB:       cfg.Storage.Valkey.DB,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
