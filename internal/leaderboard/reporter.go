package leaderboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/memoria/internal/game"
	"github.com/sirupsen/logrus"
)

// Reporter hands round outcomes to the Store without ever blocking the engine.
// Failures are logged and dropped.
type Reporter struct {
	Store   Store
	Logger  logrus.FieldLogger
	Timeout time.Duration

	wg sync.WaitGroup
}

func NewReporter(store Store, logger logrus.FieldLogger) *Reporter {
	return &Reporter{
		Store:   store,
		Logger:  logger,
		Timeout: 5 * time.Second,
	}
}

// OnRoundEnd returns a callback for game.Engine that records outcomes for playerID.
func (r *Reporter) OnRoundEnd(playerID uuid.UUID) game.OnRoundEndFunc {
	return func(out game.Outcome) {
		r.Report(playerID, out)
	}
}

// Report stores the outcome asynchronously.
func (r *Reporter) Report(playerID uuid.UUID, out game.Outcome) {
	entry := EntryFromOutcome(out, playerID)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.store(entry.RoundID, func(ctx context.Context) error {
			return r.Store.AppendRanking(ctx, entry)
		}); err != nil {
			r.Logger.WithError(err).WithFields(logrus.Fields{
				"round":  entry.RoundID,
				"player": entry.Name,
			}).Warn("Failed to record round on leaderboard")
			return
		}
		r.Logger.WithFields(logrus.Fields{
			"round":   entry.RoundID,
			"player":  entry.Name,
			"score":   entry.Score,
			"elapsed": entry.ElapsedSeconds,
		}).Debug("Recorded round on leaderboard")
	}()
}

// Wait blocks until every pending report has finished.
func (r *Reporter) Wait() {
	r.wg.Wait()
}

// store runs fn with a timeout and converts panics from the backend into errors.
func (r *Reporter) store(roundID uuid.UUID, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("leaderboard store panicked for round %s: %v", roundID, p)
		}
	}()
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return fn(ctx)
}
