// Package storage owns the decision log: an async recorder in front of the
// sqlite store, so a slow disk never stalls a tick.
package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dyike/TradeFuseGo/internal/storage/sqlite"
)

// Recorder serializes decision writes through one background goroutine.
type Recorder struct {
	store  *sqlite.Store
	logger *zap.Logger

	events chan sqlite.DecisionRow
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewRecorder(store *sqlite.Store, logger *zap.Logger) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	r := &Recorder{
		store:  store,
		logger: logger.Named("recorder"),
		events: make(chan sqlite.DecisionRow, 256),
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.loop()
	return r, nil
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for {
		select {
		case row := <-r.events:
			r.insert(row)
		case <-r.done:
			// Drain whatever is still queued before shutting down.
			for {
				select {
				case row := <-r.events:
					r.insert(row)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) insert(row sqlite.DecisionRow) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.InsertDecision(ctx, row); err != nil {
		r.logger.Error("decision insert failed",
			zap.String("tick_id", row.TickID), zap.Error(err))
	}
}

// Record enqueues one tick record. If the buffer is full the write is
// shifted to a goroutine rather than dropped; every tick yields exactly one
// persisted record.
func (r *Recorder) Record(row sqlite.DecisionRow) {
	select {
	case <-r.done:
		return
	case r.events <- row:
	default:
		go func() {
			select {
			case <-r.done:
			case r.events <- row:
			}
		}()
	}
}

// Close drains pending records and closes the store.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	return r.store.Close()
}
