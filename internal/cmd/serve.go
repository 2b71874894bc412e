package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/sentinel-privacy/sentinel/internal/anonymizer"
	"github.com/sentinel-privacy/sentinel/internal/classifier"
	"github.com/sentinel-privacy/sentinel/internal/config"
	"github.com/sentinel-privacy/sentinel/internal/evidence"
	"github.com/sentinel-privacy/sentinel/internal/ratelimit"
	"github.com/sentinel-privacy/sentinel/internal/requestctx"
	"github.com/sentinel-privacy/sentinel/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the anonymization HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", config.DefaultAddr, "HTTP listen address")
	serveCmd.Flags().Bool("no-audit", false, "disable the audit trail")
	_ = viper.BindPFlag(config.KeyAddr, serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}

// parseAPIKeys returns a map of key -> tenant_id. Each entry is "key" or "key:tenant_id".
func parseAPIKeys(entries []string) map[string]string {
	m := make(map[string]string)
	for _, part := range entries {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tenantID := requestctx.DefaultTenant
		if idx := strings.Index(part, ":"); idx > 0 {
			if t := strings.TrimSpace(part[idx+1:]); t != "" {
				tenantID = t
			}
			part = strings.TrimSpace(part[:idx])
		}
		m[part] = tenantID
	}
	return m
}

func buildScanner(cfg *config.Config) (*classifier.Scanner, error) {
	scanner, err := classifier.NewScanner(cfg.ScannerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("building analyzer: %w", err)
	}
	return scanner, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if noAudit, _ := cmd.Flags().GetBool("no-audit"); noAudit {
		cfg.AuditEnabled = false
	}

	scanner, err := buildScanner(cfg)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithEntities(scanner.Entities()),
		server.WithMaxBodyBytes(cfg.MaxBodyBytes),
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithVersion(resolvedVersion()),
	}

	if cfg.AuditEnabled {
		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		cfg.WarnIfDefaultKeys()
		store, err := evidence.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
		if err != nil {
			return fmt.Errorf("initializing audit store: %w", err)
		}
		defer store.Close()
		opts = append(opts, server.WithAuditStore(store))
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		RPS:      cfg.RateLimitRPS,
		Burst:    cfg.RateLimitBurst,
		RedisURL: cfg.RedisURL,
	})
	if err != nil {
		return fmt.Errorf("initializing rate limiter: %w", err)
	}
	defer limiter.Close()
	opts = append(opts, server.WithRateLimiter(limiter))

	apiKeys := parseAPIKeys(cfg.APIKeys)
	if len(apiKeys) == 0 {
		log.Warn().Msg("SENTINEL_API_KEYS not set; anonymize endpoints are open. Set for production.")
	}

	srv := server.NewServer(anonymizer.New(scanner), apiKeys, opts...)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().
		Str("addr", cfg.Addr).
		Strs("entities", scanner.Entities()).
		Bool("audit", cfg.AuditEnabled).
		Bool("auth", len(apiKeys) > 0).
		Float64("rate_limit_rps", cfg.RateLimitRPS).
		Bool("redis", cfg.RedisURL != "").
		Msg("sentinel_serve_started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("server_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("server_stopped")
	return nil
}
