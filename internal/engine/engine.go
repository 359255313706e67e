// Package engine implements fact search, PRD retrieval, and the forgetting
// engine over the persistent store.
package engine

import (
	"context"
	"log"
	"time"

	"github.com/lumen-tools/engram/internal/store"
)

// Engine orchestrates fact storage, retrieval, and memory forgetting.
type Engine struct {
	DB       *store.DB
	Provider *Provider
	Config   ForgetConfig
	stopCh   chan struct{}
}

// ForgetConfig holds the tunable thresholds of the forgetting engine.
type ForgetConfig struct {
	MaxFacts             int
	DecayRate            float64
	NeverAccessedPenalty float64
	DemoteThreshold      float64
	RetentionDays        int
	MergeThreshold       float64
}

// DefaultForgetConfig returns the documented threshold defaults.
func DefaultForgetConfig() ForgetConfig {
	return ForgetConfig{
		MaxFacts:             1000,
		DecayRate:            0.033,
		NeverAccessedPenalty: 0.1,
		DemoteThreshold:      0.3,
		RetentionDays:        90,
		MergeThreshold:       0.95,
	}
}

// New creates an Engine. The provider may be degraded; every retrieval path
// falls back to lexical matching when it yields nil vectors.
func New(db *store.DB, provider *Provider) *Engine {
	return &Engine{
		DB:       db,
		Provider: provider,
		Config:   DefaultForgetConfig(),
		stopCh:   make(chan struct{}),
	}
}

// StartSweepTimer runs a forgetting sweep at startup and then daily.
func (e *Engine) StartSweepTimer() {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := e.Sweep(ctx, "scheduled_sweep"); err != nil {
			log.Printf("sweep error: %v", err)
		}
	}

	run()

	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				run()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	close(e.stopCh)
}
