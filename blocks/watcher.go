// Package blocks delivers new chain head numbers to the trading loop.
package blocks

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// HeadSource is the node surface the watcher needs. Websocket clients support
// SubscribeNewHead; HTTP-only clients fail it and the watcher falls back to
// polling BlockNumber.
type HeadSource interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Watcher emits each new block number exactly once, in order. A consumer that
// falls behind loses intermediate heads, never the latest one.
type Watcher struct {
	client       HeadSource
	logger       *zap.Logger
	pollInterval time.Duration

	heads chan uint64

	mu       sync.Mutex
	lastSeen uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher. pollInterval is used only when head
// subscriptions are unavailable.
func NewWatcher(client HeadSource, pollInterval time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		client:       client,
		logger:       logger,
		pollInterval: pollInterval,
		heads:        make(chan uint64, 1),
		done:         make(chan struct{}),
	}
}

// Heads returns the channel of new block numbers. The channel is closed when
// the watcher stops.
func (w *Watcher) Heads() <-chan uint64 {
	return w.heads
}

// Start begins watching. It returns immediately; heads flow on Heads().
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		defer close(w.done)
		defer close(w.heads)

		for ctx.Err() == nil {
			if err := w.subscribe(ctx); err != nil {
				w.logger.Warn("Head subscription unavailable, polling",
					zap.Duration("interval", w.pollInterval),
					zap.Error(err))
				w.poll(ctx)
			}
		}
	}()
}

// Stop halts the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

func (w *Watcher) subscribe(ctx context.Context) error {
	headers := make(chan *types.Header, 16)
	sub, err := w.client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			w.logger.Warn("Head subscription dropped, resubscribing", zap.Error(err))
			return nil
		case header := <-headers:
			w.emit(header.Number.Uint64())
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			number, err := w.client.BlockNumber(ctx)
			if err != nil {
				w.logger.Warn("Failed to poll block number", zap.Error(err))
				continue
			}
			w.emit(number)
		}
	}
}

// emit forwards a head number, replacing a pending undelivered one so the
// consumer always wakes to the newest block.
func (w *Watcher) emit(number uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if number <= w.lastSeen {
		return
	}
	w.lastSeen = number

	select {
	case w.heads <- number:
	default:
		select {
		case <-w.heads:
		default:
		}
		select {
		case w.heads <- number:
		default:
		}
	}
}
