package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/inkwellhq/inkwell/internal/blob"
	"github.com/inkwellhq/inkwell/internal/obs"
	"github.com/inkwellhq/inkwell/internal/store"
)

// SweeperConfig tunes the temporary-template sweep.
type SweeperConfig struct {
	// Interval is the time between sweep passes.
	Interval time.Duration
	// MaxAge is how old a temporary template must be before it is reaped.
	MaxAge time.Duration
}

// Sweeper periodically reaps temporary templates (the temporary flag or the
// edit-session name prefix) older than MaxAge. A single goroutine runs the
// passes, so a slow pass delays the next one instead of overlapping it.
type Sweeper struct {
	cfg   SweeperConfig
	store store.Store
	blobs blob.Store
	log   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewSweeper(cfg SweeperConfig, st store.Store, blobs blob.Store, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 2 * time.Hour
	}
	return &Sweeper{
		cfg:    cfg,
		store:  st,
		blobs:  blobs,
		log:    logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the sweep loop. Call Stop to shut it down.
func (s *Sweeper) Start() {
	go s.run()
	s.log.Info("template sweeper started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("max_age", s.cfg.MaxAge),
	)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.log.Info("template sweeper stopped")
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep runs one pass, deleting each candidate's blob before its row so a
// partial failure leaves a row the next pass can retry. Per-item failures
// are logged and skipped; one broken template never stalls the rest.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.MaxAge)

	candidates, err := s.store.Templates().ListSweepCandidates(ctx, cutoff)
	if err != nil {
		s.log.Error("sweep scan failed", slog.Any("error", err))
		return
	}
	if len(candidates) == 0 {
		return
	}

	reaped := 0
	for _, tmpl := range candidates {
		if tmpl.StorageKey != "" {
			if err := s.blobs.Delete(ctx, tmpl.StorageKey); err != nil {
				s.log.Warn("sweep blob delete failed",
					slog.String("template_id", tmpl.ID),
					slog.String("storage_key", tmpl.StorageKey),
					slog.Any("error", err),
				)
				continue
			}
		}
		if err := s.store.Templates().DeleteTemplate(ctx, tmpl.ID); err != nil {
			s.log.Warn("sweep row delete failed",
				slog.String("template_id", tmpl.ID),
				slog.Any("error", err),
			)
			continue
		}
		obs.SweepReaped.Inc()
		reaped++
	}

	s.log.Info("sweep pass finished",
		slog.Int("candidates", len(candidates)),
		slog.Int("reaped", reaped),
	)
}
