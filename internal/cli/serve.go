package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumen-tools/engram/internal/config"
	"github.com/lumen-tools/engram/internal/engine"
	"github.com/lumen-tools/engram/internal/server"
	"github.com/lumen-tools/engram/internal/store"
	"github.com/spf13/cobra"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to TOML config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		if envPath := os.Getenv("ENGRAM_DB"); envPath != "" {
			dbPath = envPath
		} else {
			dbPath, err = store.DefaultDBPath()
			if err != nil {
				return fmt.Errorf("resolve db path: %w", err)
			}
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	provider := engine.NewProvider(cfg.Embedding.URL, cfg.Embedding.Model)
	eng := engine.New(db, provider)
	eng.Config = engine.ForgetConfig{
		MaxFacts:             cfg.Forget.MaxFacts,
		DecayRate:            cfg.Forget.DecayRate,
		NeverAccessedPenalty: cfg.Forget.NeverAccessedPenalty,
		DemoteThreshold:      cfg.Forget.DemoteThreshold,
		RetentionDays:        cfg.Forget.RetentionDays,
		MergeThreshold:       cfg.Forget.MergeThreshold,
	}
	eng.StartSweepTimer()
	defer eng.Stop()

	srv := server.New(db, eng, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "engram serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", dbPath)
		if provider.Available() {
			fmt.Fprintf(os.Stderr, "  embedder: %s\n", provider.Model())
		} else {
			fmt.Fprintf(os.Stderr, "  embedder: unavailable (lexical fallback)\n")
		}
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
