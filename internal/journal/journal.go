// Package journal persists committed engine changes write-behind: the
// engine hands over snapshots synchronously and a worker pool writes them
// to the store without blocking the serialized transaction path.
package journal

import (
	"context"
	"fmt"

	"github.com/openrelief/aidmatch/internal/engine"
	"github.com/openrelief/aidmatch/internal/repository"
	"github.com/openrelief/aidmatch/internal/worker"
)

type Journal struct {
	store repository.Store
	pool  *worker.Pool[engine.Change]
}

// New returns a journal backed by a single persistence worker. One worker
// is a correctness requirement, not a tuning default: saves are
// last-writer-wins upserts and the event log relies on insertion order,
// so snapshots must reach the store in the order the engine committed
// them.
func New(store repository.Store, bufferSize int) *Journal {
	j := &Journal{store: store}
	j.pool = worker.NewPool(1, bufferSize, j.persist)
	return j
}

func (j *Journal) Start(ctx context.Context) {
	j.pool.Start(ctx)
}

func (j *Journal) Stop() {
	j.pool.Stop()
}

// Record queues a change for persistence. Installed as the engine's sink.
func (j *Journal) Record(c engine.Change) {
	j.pool.Submit(c)
}

// persist applies a change snapshot in order: entities before the events
// that reference them.
func (j *Journal) persist(ctx context.Context, c engine.Change) error {
	for _, r := range c.Reports {
		if err := j.store.SaveReport(ctx, r); err != nil {
			return fmt.Errorf("journal report: %w", err)
		}
	}
	for _, o := range c.Offers {
		if err := j.store.SaveOffer(ctx, o); err != nil {
			return fmt.Errorf("journal offer: %w", err)
		}
	}
	for _, r := range c.Requests {
		if err := j.store.SaveRequest(ctx, r); err != nil {
			return fmt.Errorf("journal request: %w", err)
		}
	}
	for _, m := range c.Matches {
		if err := j.store.SaveMatch(ctx, m); err != nil {
			return fmt.Errorf("journal match: %w", err)
		}
	}
	for _, e := range c.Events {
		if err := j.store.AppendEvent(ctx, e); err != nil {
			return fmt.Errorf("journal event: %w", err)
		}
	}
	return nil
}
