package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// LinkSweeper periodically deletes smart links past their expiry. Expired
// links already fail verification; the sweep is storage hygiene only.
type LinkSweeper struct {
	logger   *zap.Logger
	pool     *pgxpool.Pool
	grace    time.Duration
	interval time.Duration
	stopChan chan struct{}
}

// NewLinkSweeper creates a sweeper that removes links expired for longer than
// grace.
func NewLinkSweeper(logger *zap.Logger, pool *pgxpool.Pool, grace time.Duration) *LinkSweeper {
	return &LinkSweeper{
		logger:   logger,
		pool:     pool,
		grace:    grace,
		interval: time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (s *LinkSweeper) Start() {
	go s.run()
}

// Stop stops the periodic sweep.
func (s *LinkSweeper) Stop() {
	close(s.stopChan)
}

func (s *LinkSweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			s.logger.Info("link sweeper stopped")
			return
		}
	}
}

func (s *LinkSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.grace)
	tag, err := s.pool.Exec(ctx, "DELETE FROM smart_links WHERE expires_at < $1", cutoff)
	if err != nil {
		s.logger.Error("failed to sweep expired links", zap.Error(err))
		return
	}

	if tag.RowsAffected() > 0 {
		s.logger.Info("swept expired smart links",
			zap.Int64("count", tag.RowsAffected()),
			zap.Time("expired_before", cutoff),
		)
	}
}
