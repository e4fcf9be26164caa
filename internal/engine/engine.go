package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"asinshort/pkg/models"
)

// Processor defines how to handle a single navigation.
// It returns the records (T) worth keeping.
type Processor[T any] interface {
	Process(ctx context.Context, nav models.Navigation) ([]T, error)
}

// Sink defines how to persist the records.
type Sink[T any] interface {
	Save(ctx context.Context, batch []T) error
}

// Config holds worker settings.
type Config struct {
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
}

// Engine fans navigation events out to workers and batches their results
// into a sink.
type Engine[T any] struct {
	config    Config
	processor Processor[T]
	sink      Sink[T]
	log       *zap.Logger

	events  chan models.Navigation
	results chan T
}

func NewEngine[T any](cfg Config, proc Processor[T], sink Sink[T], log *zap.Logger) *Engine[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine[T]{
		config:    cfg,
		processor: proc,
		sink:      sink,
		log:       log,
		events:    make(chan models.Navigation, 100),
		results:   make(chan T, cfg.BatchSize*2),
	}
}

// Submit queues a navigation. It blocks while the queue is full and gives up
// when ctx is done.
func (engine *Engine[T]) Submit(ctx context.Context, nav models.Navigation) error {
	select {
	case engine.events <- nav:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the workers and blocks until ctx is cancelled. Records produced
// before cancellation are flushed before Run returns.
func (engine *Engine[T]) Run(ctx context.Context) {
	var workers, storage sync.WaitGroup

	storage.Add(1)
	go engine.startStorageWorker(&storage)

	for i := 0; i < engine.config.Workers; i++ {
		workers.Add(1)
		go engine.startWorker(ctx, &workers, i)
	}

	engine.log.Debug("Engine started", zap.Int("workers", engine.config.Workers))
	workers.Wait()
	close(engine.results)
	storage.Wait()
}

func (engine *Engine[T]) startWorker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case nav := <-engine.events:
			engine.log.Debug("Processing", zap.Int("worker", id), zap.String("tab", nav.TabID), zap.String("url", nav.URL))

			data, err := engine.processor.Process(ctx, nav)
			if err != nil {
				engine.log.Warn("Unable to process navigation", zap.Int("worker", id), zap.String("url", nav.URL), zap.Error(err))
				continue
			}
			for _, item := range data {
				engine.results <- item
			}
		}
	}
}

func (engine *Engine[T]) startStorageWorker(wg *sync.WaitGroup) {
	defer wg.Done()

	buffer := make([]T, 0, engine.config.BatchSize)
	ticker := time.NewTicker(engine.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		// the run context may already be gone, saving must still complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := engine.sink.Save(ctx, buffer); err != nil {
			engine.log.Error("Failed to save batch", zap.Int("size", len(buffer)), zap.Error(err))
		} else {
			engine.log.Debug("Saved batch", zap.Int("size", len(buffer)))
		}
		buffer = buffer[:0]
	}

	for {
		select {
		case item, ok := <-engine.results:
			if !ok {
				flush()
				return
			}
			buffer = append(buffer, item)
			if len(buffer) >= engine.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
