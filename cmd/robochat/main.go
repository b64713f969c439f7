// Command robochat is an interactive console for multi-turn
// vision-language conversations with a robot reasoning model.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/robochat-dev/robochat/pkg/backend"
	"github.com/robochat-dev/robochat/pkg/config"
	"github.com/robochat-dev/robochat/pkg/observability"
	"github.com/robochat-dev/robochat/pkg/session"
)

var (
	version    = "dev"
	configPath string
	cfg        *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "robochat",
		Short:   "Multi-turn vision-language chat for robot reasoning models",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if configPath != "" {
				cfg, err = config.Load(configPath)
				if err != nil {
					return err
				}
			} else {
				cfg = config.Default()
			}
			observability.InitMetrics()
			if err := observability.InitTracingFromEnv(); err != nil {
				log.Printf("tracing disabled: %v", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if err := observability.ShutdownTracing(context.Background()); err != nil {
				log.Printf("tracing shutdown: %v", err)
			}
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newModelsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newBackend builds the configured inference backend, rate limited and
// instrumented.
func newBackend(ctx context.Context) (backend.Backend, error) {
	var (
		b   backend.Backend
		err error
	)
	switch cfg.Backend.Provider {
	case "openai":
		b = backend.NewOpenAI(backend.OpenAIOptions{
			APIKey:  cfg.Backend.APIKey,
			BaseURL: cfg.Backend.BaseURL,
			Model:   cfg.Backend.Model,
		})
	case "gemini":
		b, err = backend.NewGemini(ctx, backend.GeminiOptions{
			APIKey: cfg.Backend.APIKey,
			Model:  cfg.Backend.Model,
		})
	case "bedrock":
		b, err = backend.NewBedrock(ctx, backend.BedrockOptions{
			Region: cfg.Backend.Region,
			Model:  cfg.Backend.Model,
		})
	default:
		err = fmt.Errorf("unknown backend provider %q", cfg.Backend.Provider)
	}
	if err != nil {
		return nil, err
	}
	b = backend.RateLimit(b, cfg.Backend.RequestsPerSecond, cfg.Backend.Burst)
	return backend.Instrument(b), nil
}

// newStore builds the configured session store.
func newStore(ctx context.Context) (session.Store, error) {
	switch cfg.Store.Type {
	case "file":
		return session.NewFileStore(cfg.Store.Dir)
	case "redis":
		return session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
			TTL:      cfg.Store.RedisTTL.Std(),
		})
	case "firestore":
		return session.NewFirestoreStore(ctx, session.FirestoreConfig{
			ProjectID:  cfg.Store.FirestoreProject,
			Collection: cfg.Store.FirestoreCollection,
		})
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

// startJanitor launches session expiry if enabled. Returns a stop
// function, which may be a no-op.
func startJanitor(store session.Store) func() {
	if !cfg.Janitor.Enabled {
		return func() {}
	}
	j, err := session.NewJanitor(store, cfg.Janitor.Schedule, cfg.Janitor.MaxAge.Std())
	if err != nil {
		log.Printf("janitor disabled: %v", err)
		return func() {}
	}
	j.Start()
	return j.Stop
}

// startMetrics launches the observability server if enabled.
func startMetrics() func() {
	if !cfg.Metrics.Enabled {
		return func() {}
	}
	srv := observability.NewServer(cfg.Metrics.Addr)
	srv.Start()
	return func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Printf("metrics shutdown: %v", err)
		}
	}
}
