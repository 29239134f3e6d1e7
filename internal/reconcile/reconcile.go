// Package reconcile keeps a roster view in step with the roster store while
// the user rearranges it. Swaps are applied to the view at once and persisted
// in the background, one at a time, in the order they were made. When a
// persist fails the view is rebuilt from the last confirmed roster with the
// swaps still pending replayed on top, so a failure only undoes its own swap.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/courtside/internal/adapters/mq/queue"
	"github.com/okian/courtside/internal/adapters/mq/worker"
	"github.com/okian/courtside/internal/domain/roster"
	"github.com/okian/courtside/pkg/dispatch"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

const (
	defaultQueueSize      = 256
	defaultPersistTimeout = 5 * time.Second
	flushPollInterval     = 5 * time.Millisecond
)

// Store is the source of truth for the roster.
type Store interface {
	FetchRoster(ctx context.Context) (roster.View, error)
	SwapSlots(ctx context.Context, from, to roster.SlotRef) error
}

// Swap is one proposed exchange on its way to the store.
type Swap struct {
	ID       string
	From     roster.SlotRef
	To       roster.SlotRef
	Proposed time.Time
}

// Reconciler owns the roster view. It is safe for concurrent use.
type Reconciler struct {
	store          Store
	queueSize      int
	persistTimeout time.Duration
	logger         logger.Logger

	mu        sync.Mutex
	loaded    bool
	stopped   bool
	confirmed roster.View
	view      roster.View
	pending   []Swap
	selected  *roster.SlotRef
	subs      map[uint64]func(roster.View)
	nextSub   uint64

	// persistMu is held across each store round trip, so a Load never
	// fetches while a swap is in flight.
	persistMu sync.Mutex

	queue    *queue.InMemoryQueue[Swap]
	worker   *worker.InMemoryWorker[Swap]
	notify   *dispatch.Serial
	startMu  sync.Mutex
	started  bool
	runCtx   context.Context
	cancelFn context.CancelFunc
}

// New creates a Reconciler. Call Start to begin persisting.
func New(store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:          store,
		queueSize:      defaultQueueSize,
		persistTimeout: defaultPersistTimeout,
		logger:         logger.Get().Named("reconcile"),
		subs:           make(map[uint64]func(roster.View)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = queue.NewInMemoryQueue[Swap](
		queue.WithCapacity(r.queueSize),
		queue.WithSizeObserver(metrics.UpdatePersistQueueSize),
	)
	r.worker = worker.NewInMemoryWorker[Swap](r.queue, worker.HandlerFunc[Swap](r.persist),
		worker.WithName("persist"),
		worker.WithLogger(r.logger.Named("persist")),
	)
	r.notify = dispatch.NewSerial(dispatch.WithPanicHandler(func(v any) {
		r.logger.Error(context.Background(), "roster subscriber panicked", logger.Any("panic", v))
	}))
	r.runCtx, r.cancelFn = context.WithCancel(context.Background())
	return r
}

// Start runs the persist worker. It keeps running until Stop has drained
// the queue.
func (r *Reconciler) Start() {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if r.started {
		return
	}
	r.started = true
	go r.worker.Run(r.runCtx)
}

// Stop refuses new swaps and lets queued ones finish persisting. If ctx ends
// first the swap in flight is aborted and every swap the store never
// acknowledged is rolled back, so the view always ends up matching the
// confirmed roster.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	_ = r.queue.Close()

	r.startMu.Lock()
	started := r.started
	r.startMu.Unlock()

	var err error
	if started {
		select {
		case <-r.worker.Done():
		case <-ctx.Done():
			err = fmt.Errorf("stop reconciler: %w", ctx.Err())
			r.cancelFn()
			<-r.worker.Done()
		}
	}
	r.cancelFn()

	r.mu.Lock()
	r.abandonPendingLocked()
	r.mu.Unlock()
	r.notify.Close()
	return err
}

// abandonPendingLocked rolls back swaps that will never reach the store.
func (r *Reconciler) abandonPendingLocked() {
	if len(r.pending) == 0 {
		return
	}
	for _, op := range r.pending {
		metrics.RecordRollback()
		r.logger.Warn(context.Background(), "swap abandoned",
			logger.String("swap_id", op.ID),
			logger.String("from", op.From.String()),
			logger.String("to", op.To.String()),
		)
	}
	r.pending = nil
	r.view = r.confirmed.Clone()
	r.publishLocked()
}

// Load replaces the confirmed roster with the store's. Swaps still pending
// are replayed on top; none of them has reached the store yet because Load
// waits out any swap in flight. On failure the current view is left as it
// was.
func (r *Reconciler) Load(ctx context.Context) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	v, err := r.store.FetchRoster(ctx)
	if err != nil {
		r.logger.Warn(ctx, "fetch roster failed", logger.Error(err))
		return fmt.Errorf("load roster: %w", err)
	}
	v = v.Sorted()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = v
	r.view = replay(v, r.pending)
	r.loaded = true
	r.publishLocked()
	r.logger.Info(ctx, "roster loaded",
		logger.Int("starters", len(v.Starters)),
		logger.Int("bench", len(v.Bench)),
	)
	return nil
}

// View returns a copy of the current, possibly optimistic, roster.
func (r *Reconciler) View() roster.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.Clone()
}

// Confirmed returns the roster as last acknowledged by the store.
func (r *Reconciler) Confirmed() roster.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confirmed.Clone()
}

// Pending returns the number of swaps not yet acknowledged.
func (r *Reconciler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Selected returns the armed slot of a click-to-swap, if any.
func (r *Reconciler) Selected() (roster.SlotRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selected == nil {
		return roster.SlotRef{}, false
	}
	return *r.selected, true
}

// Click arms ref, cancels the selection when ref is already armed, or swaps
// the armed slot with ref. It reports whether a swap was proposed.
func (r *Reconciler) Click(ref roster.SlotRef) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return false, ErrNotLoaded
	}
	if _, ok := r.view.Find(ref); !ok {
		return false, fmt.Errorf("click %s: %w", ref, roster.ErrInvalidSlot)
	}
	switch {
	case r.selected == nil:
		sel := ref
		r.selected = &sel
		return false, nil
	case *r.selected == ref:
		r.selected = nil
		return false, nil
	default:
		from := *r.selected
		r.selected = nil
		if err := r.proposeLocked(from, ref); err != nil {
			return false, err
		}
		return true, nil
	}
}

// Drop completes a drag from one slot onto another. Dropping a slot on
// itself does nothing.
func (r *Reconciler) Drop(from, to roster.SlotRef) error {
	if from == to {
		return nil
	}
	return r.Propose(from, to)
}

// Propose applies the swap to the view immediately and queues it for
// persisting.
func (r *Reconciler) Propose(from, to roster.SlotRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proposeLocked(from, to)
}

func (r *Reconciler) proposeLocked(from, to roster.SlotRef) error {
	if r.stopped {
		return ErrStopped
	}
	if !r.loaded {
		return ErrNotLoaded
	}
	next, err := r.view.Swap(from, to)
	if err != nil {
		return fmt.Errorf("propose: %w", err)
	}
	op := Swap{ID: uuid.NewString(), From: from, To: to, Proposed: time.Now()}
	if err := r.queue.Put(r.runCtx, op); err != nil {
		if errors.Is(err, queue.ErrFull) {
			return ErrBusy
		}
		return fmt.Errorf("%w: %w", ErrStopped, err)
	}
	r.view = next
	r.pending = append(r.pending, op)
	metrics.RecordSwapProposed()
	r.publishLocked()
	r.logger.Debug(context.Background(), "swap proposed",
		logger.String("swap_id", op.ID),
		logger.String("from", from.String()),
		logger.String("to", to.String()),
	)
	return nil
}

// persist runs on the worker goroutine, one swap at a time.
func (r *Reconciler) persist(ctx context.Context, op Swap) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, r.persistTimeout)
	err := r.store.SwapSlots(pctx, op.From, op.To)
	cancel()
	took := float64(time.Since(start).Milliseconds())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = remove(r.pending, op.ID)

	if err == nil {
		confirmed, serr := r.confirmed.Swap(op.From, op.To)
		if serr != nil {
			// The store accepted a swap our snapshot cannot express; the next
			// Load will resync.
			r.logger.Warn(ctx, "confirmed roster out of step", logger.String("swap_id", op.ID), logger.Error(serr))
		} else {
			r.confirmed = confirmed
		}
		metrics.RecordSwapPersisted(took)
		return nil
	}

	metrics.RecordSwapFailed(took)
	metrics.RecordRollback()
	r.view = replay(r.confirmed, r.pending)
	r.publishLocked()
	r.logger.Warn(ctx, "swap rolled back",
		logger.String("swap_id", op.ID),
		logger.String("from", op.From.String()),
		logger.String("to", op.To.String()),
		logger.Int("still_pending", len(r.pending)),
		logger.Error(err),
	)
	return nil
}

// Flush waits until every proposed swap has been acknowledged or rolled back.
func (r *Reconciler) Flush(ctx context.Context) error {
	t := time.NewTicker(flushPollInterval)
	defer t.Stop()
	for {
		if r.Pending() == 0 {
			r.notify.Sync()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("flush: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// Subscribe registers fn for every view change and immediately delivers the
// current view if one is loaded. Calls are serialized and in change order.
func (r *Reconciler) Subscribe(fn func(roster.View)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	if r.loaded {
		v := r.view.Clone()
		r.notify.Submit(func() { fn(v) })
	}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
		})
	}
}

// publishLocked queues delivery of the current view. The subscriber set is
// read when the job runs so late unsubscribes are honoured.
func (r *Reconciler) publishLocked() {
	v := r.view.Clone()
	r.notify.Submit(func() {
		r.mu.Lock()
		fns := make([]func(roster.View), 0, len(r.subs))
		for _, fn := range r.subs {
			fns = append(fns, fn)
		}
		r.mu.Unlock()
		for _, fn := range fns {
			fn(v)
		}
	})
}

func replay(base roster.View, pending []Swap) roster.View {
	v := base.Clone()
	for _, op := range pending {
		if next, err := v.Swap(op.From, op.To); err == nil {
			v = next
		}
	}
	return v
}

func remove(ops []Swap, id string) []Swap {
	for i, op := range ops {
		if op.ID == id {
			out := make([]Swap, 0, len(ops)-1)
			out = append(out, ops[:i]...)
			return append(out, ops[i+1:]...)
		}
	}
	return ops
}
