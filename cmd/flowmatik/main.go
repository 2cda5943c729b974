// Command flowmatik runs the Flowmatik AI backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/flowmatik/backend/agents"
	"github.com/flowmatik/backend/config"
	"github.com/flowmatik/backend/memory"
	chromemindex "github.com/flowmatik/backend/memory/index/chromem"
	"github.com/flowmatik/backend/provider"
	anthropicprovider "github.com/flowmatik/backend/provider/anthropic"
	"github.com/flowmatik/backend/provider/doubao"
	"github.com/flowmatik/backend/server"
	"github.com/flowmatik/backend/usage"
)

func main() {
	root := &cobra.Command{
		Use:          "flowmatik",
		Short:        "Flowmatik AI backend: 8 agents, eternal memory, streaming",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	catalog, err := agents.LoadCatalog(cfg.AgentsFile)
	if err != nil {
		return fmt.Errorf("load agent catalog: %w", err)
	}
	registry, err := agents.NewRegistry(catalog)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	log.Printf("[SERVER] %d agents registered", registry.Len())

	index, err := chromemindex.New()
	if err != nil {
		return fmt.Errorf("semantic index: %w", err)
	}
	store, err := memory.New(index, newEmbedder(), memory.Config{
		DBPath:        cfg.DBPath,
		DefaultWindow: cfg.ContextTurns,
		ResolveAgent:  registry.Has,
		Reindex:       cfg.Reindex,
	})
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer store.Close()

	upstream, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	log.Printf("[SERVER] provider %s ready", upstream.Info().Name)

	tracker := usage.NewTracker()
	system := agents.NewSystem(registry, upstream,
		agents.WithMemory(store),
		agents.WithUsage(tracker),
		agents.WithContextTurns(cfg.ContextTurns),
	)

	srv := server.New(system, store, tracker)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[SERVER] listening on :%d", cfg.Port)
		errCh <- httpSrv.ListenAndServe()
	}()
	srv.MarkReady()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("[SERVER] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func buildProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider {
	case config.ProviderDoubao:
		return doubao.New(func(o *doubao.Options) {
			o.APIKey = cfg.APIKey
			if cfg.BaseURL != "" {
				o.BaseURL = cfg.BaseURL
			}
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropicprovider.New(func(o *anthropicprovider.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
		}), nil
	case config.ProviderMock:
		return provider.NewMock(agents.DefaultModel), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
