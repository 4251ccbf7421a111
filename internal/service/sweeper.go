package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verityhq/verity/internal/domain"
)

const (
	defaultSweepInterval = 5 * time.Minute
	defaultSweepLookback = 10 * time.Minute
	sweepThreadLimit     = 100
)

// SweeperService periodically re-runs contradiction detection over threads
// with recent memory writes. It catches conflicts between memories that were
// never part of the same verify call, such as imports landing after the
// conversation moved on.
type SweeperService struct {
	memoryStore domain.MemoryStore
	ledger      *LedgerService
	extractor   *ClaimExtractor
	detector    *ContradictionDetector
	logger      *zap.Logger

	interval    time.Duration
	lookback    time.Duration
	maxMemories int
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func NewSweeperService(ms domain.MemoryStore, ledger *LedgerService, extractor *ClaimExtractor, detector *ContradictionDetector, logger *zap.Logger) *SweeperService {
	return &SweeperService{
		memoryStore: ms,
		ledger:      ledger,
		extractor:   extractor,
		detector:    detector,
		logger:      logger,
		interval:    defaultSweepInterval,
		lookback:    defaultSweepLookback,
		maxMemories: DefaultMaxMemories,
		stopCh:      make(chan struct{}),
	}
}

func (s *SweeperService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *SweeperService) SetLookback(d time.Duration) {
	s.lookback = d
}

func (s *SweeperService) SetMaxMemories(n int) {
	if n > 0 {
		s.maxMemories = n
	}
}

// Start runs the sweeper on a periodic schedule in a background goroutine.
func (s *SweeperService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("contradiction sweeper started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("contradiction sweeper stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the sweeper.
func (s *SweeperService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *SweeperService) run(ctx context.Context) {
	threads, err := s.memoryStore.ListThreadsUpdatedSince(ctx, time.Now().Add(-s.lookback), sweepThreadLimit)
	if err != nil {
		s.logger.Error("failed to list recently updated threads", zap.Error(err))
		return
	}

	for _, ref := range threads {
		if err := s.sweepThread(ctx, ref); err != nil {
			s.logger.Warn("thread sweep failed",
				zap.String("thread_id", ref.ThreadID),
				zap.Error(err))
		}
	}
}

// sweepThread detects conflicts across a thread's active memories and
// ledgers anything new. A conflict already ledgered for the same memory set
// comes back as ErrLedgerConflict and is skipped.
func (s *SweeperService) sweepThread(ctx context.Context, ref domain.ThreadRef) error {
	memories, err := s.memoryStore.ListActiveByThread(ctx, ref.TenantID, ref.ThreadID, s.maxMemories)
	if err != nil {
		return fmt.Errorf("list thread memories: %w", err)
	}
	if len(memories) < 2 {
		return nil
	}

	preserved, err := s.ledger.PreservedPairs(ctx, ref.TenantID, ref.ThreadID)
	if err != nil {
		s.logger.Warn("preserved pairs unavailable during sweep",
			zap.String("thread_id", ref.ThreadID),
			zap.Error(err))
		preserved = nil
	}

	facts := s.extractor.MemoryFacts(memories)
	details := s.detector.Detect(facts, preserved)
	if len(details) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*domain.Memory, len(memories))
	for i := range memories {
		byID[memories[i].ID] = &memories[i]
	}

	recorded := 0
	for _, detail := range details {
		_, err := s.ledger.Record(ctx, ref.TenantID, ref.ThreadID, detail, changeContextFor(detail, byID))
		if errors.Is(err, ErrLedgerConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("record contradiction: %w", err)
		}
		recorded++
	}
	if recorded > 0 {
		s.logger.Info("sweep ledgered new contradictions",
			zap.String("thread_id", ref.ThreadID),
			zap.Int("count", recorded))
	}
	return nil
}
