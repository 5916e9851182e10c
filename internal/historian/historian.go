// Package historian drains the round action queue and persists it.
package historian

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memoria/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Sink persists queued round actions.
type Sink interface {
	InsertRoundActions(ctx context.Context, batch []cache.RoundActionRecord) error
	MarkRoundAbandoned(ctx context.Context, roundID uuid.UUID) error
}

// Source yields raw queue payloads. Pop returns ("", nil) when nothing arrived within timeout.
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

// RedisSource pops from a Redis list with BLPOP.
type RedisSource struct {
	Client *redis.Client
	Queue  string
}

func (s RedisSource) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := s.Client.BLPop(ctx, timeout, s.Queue).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	// res[0] is the queue name and res[1] the payload.
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// Options tune batching and abandonment.
type Options struct {
	BatchSize  int
	FlushDelay time.Duration
	Inactivity time.Duration
	// SweepEvery is how often the inactivity check runs. Defaults to a minute.
	SweepEvery time.Duration
	PopTimeout time.Duration
}

// Service captures round actions and marks rounds abandoned after the inactivity threshold.
type Service struct {
	source Source
	sink   Sink
	opts   Options
	log    logrus.FieldLogger
	now    func() time.Time

	lastActivity sync.Map // map[uuid.UUID]time.Time

	batchMu sync.Mutex
	batch   []cache.RoundActionRecord
}

func NewService(source Source, sink Sink, opts Options, logger logrus.FieldLogger) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = 500 * time.Millisecond
	}
	if opts.Inactivity <= 0 {
		opts.Inactivity = 10 * time.Minute
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = time.Minute
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		source: source,
		sink:   sink,
		opts:   opts,
		log:    logger,
		now:    time.Now,
		batch:  make([]cache.RoundActionRecord, 0, opts.BatchSize),
	}
}

// Run starts the queue and inactivity loops and blocks until ctx is done.
// The pending batch is flushed before returning.
func (hs *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); hs.readLoop(ctx) }()
	go func() { defer wg.Done(); hs.flushLoop(ctx) }()
	go func() { defer wg.Done(); hs.inactivityLoop(ctx) }()

	hs.log.Info("memoria-historian service started")
	<-ctx.Done()
	wg.Wait()
	hs.Flush(context.Background())
	hs.log.Info("memoria-historian shutting down")
}

func (hs *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		payload, err := hs.source.Pop(ctx, hs.opts.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			hs.log.WithError(err).Error("BLPop failed")
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if payload == "" {
			continue
		}
		hs.Ingest(ctx, payload)
	}
}

func (hs *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(hs.opts.FlushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hs.Flush(ctx)
		}
	}
}

// Ingest decodes one queue payload and adds it to the batch.
func (hs *Service) Ingest(ctx context.Context, payload string) {
	rec, err := cache.DecodeRoundAction([]byte(payload))
	if err != nil {
		hs.log.WithError(err).Warn("invalid action record")
		return
	}

	switch rec.ActionType {
	case "round_end", "round_reset":
		hs.lastActivity.Delete(rec.RoundID)
	default:
		hs.lastActivity.Store(rec.RoundID, hs.now())
	}

	hs.batchMu.Lock()
	hs.batch = append(hs.batch, rec)
	full := len(hs.batch) >= hs.opts.BatchSize
	hs.batchMu.Unlock()
	if full {
		hs.Flush(ctx)
	}
}

// Flush writes the current batch in a single call to the sink.
// A failed batch is logged and dropped.
func (hs *Service) Flush(ctx context.Context) {
	hs.batchMu.Lock()
	if len(hs.batch) == 0 {
		hs.batchMu.Unlock()
		return
	}
	batchCopy := make([]cache.RoundActionRecord, len(hs.batch))
	copy(batchCopy, hs.batch)
	hs.batch = hs.batch[:0]
	hs.batchMu.Unlock()

	if err := hs.sink.InsertRoundActions(ctx, batchCopy); err != nil {
		hs.log.WithError(err).Errorf("Failed to flush %d actions", len(batchCopy))
		return
	}
	hs.log.Debugf("Flushed %d actions", len(batchCopy))
}

func (hs *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(hs.opts.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hs.SweepInactive(ctx)
		}
	}
}

// SweepInactive marks every round idle past the threshold as abandoned.
func (hs *Service) SweepInactive(ctx context.Context) int {
	now := hs.now()
	marked := 0
	hs.lastActivity.Range(func(key, val interface{}) bool {
		roundID, ok1 := key.(uuid.UUID)
		last, ok2 := val.(time.Time)
		if !ok1 || !ok2 || now.Sub(last) <= hs.opts.Inactivity {
			return true
		}
		// Pending actions for the round must land before it is closed.
		hs.Flush(ctx)
		if err := hs.sink.MarkRoundAbandoned(ctx, roundID); err != nil {
			hs.log.WithError(err).Warnf("Failed to mark round %v abandoned", roundID)
			return true
		}
		hs.lastActivity.Delete(roundID)
		hs.log.Infof("Marked round %v as abandoned due to inactivity", roundID)
		marked++
		return true
	})
	return marked
}
