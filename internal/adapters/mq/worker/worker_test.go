package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/courtside/internal/adapters/mq/queue"
	"github.com/okian/courtside/internal/adapters/mq/worker"
	logging "github.com/okian/courtside/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logging.Init()
}

type recorder struct {
	mu    sync.Mutex
	seen  []int
	fail  map[int]error
	delay time.Duration
}

func (r *recorder) Handle(_ context.Context, item int) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, item)
	return r.fail[item]
}

func (r *recorder) items() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.seen))
	copy(out, r.seen)
	return out
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker draining an in-memory queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue[int](queue.WithCapacity(64))
		rec := &recorder{fail: map[int]error{3: errors.New("boom")}}
		w := worker.NewInMemoryWorker[int](q, rec, worker.WithName("test-worker"))
		go w.Run(ctx)

		convey.Convey("When items are enqueued and the queue is closed", func() {
			for i := 0; i < 10; i++ {
				convey.So(q.Enqueue(ctx, i), convey.ShouldBeTrue)
			}
			_ = q.Close()

			convey.Convey("Then every item is handled once, in order, despite failures", func() {
				select {
				case <-w.Done():
				case <-time.After(2 * time.Second):
					t.Fatal("worker did not drain")
				}
				convey.So(rec.items(), convey.ShouldResemble, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
			})
		})

		convey.Convey("When the worker is shut down", func() {
			err := w.Shutdown(ctx)

			convey.Convey("Then it stops and a second shutdown is harmless", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a worker stuck on a slow item", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue[int]()
		rec := &recorder{delay: 200 * time.Millisecond}
		w := worker.NewInMemoryWorker[int](q, rec)
		go w.Run(ctx)
		q.Enqueue(ctx, 1)
		time.Sleep(20 * time.Millisecond)

		convey.Convey("When shutdown has a short deadline", func() {
			sctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			err := w.Shutdown(sctx)

			convey.Convey("Then it reports the timeout", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a worker cancelled while an item is in flight", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue[int](queue.WithCapacity(8))
		started := make(chan struct{})
		release := make(chan struct{})
		w := worker.NewInMemoryWorker[int](q, worker.HandlerFunc[int](func(_ context.Context, n int) error {
			if n == 1 {
				close(started)
				<-release
			}
			return nil
		}))
		for i := 1; i <= 3; i++ {
			q.Enqueue(context.Background(), i)
		}
		go w.Run(ctx)
		<-started

		convey.Convey("Then the items behind it stay on the queue", func() {
			cancel()
			close(release)
			select {
			case <-w.Done():
			case <-time.After(time.Second):
				t.Fatal("worker did not stop on cancel")
			}
			convey.So(q.Len(context.Background()), convey.ShouldEqual, 2)
		})
	})

	convey.Convey("Given a handler func", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		q := queue.NewInMemoryQueue[string]()
		got := make(chan string, 1)
		w := worker.NewInMemoryWorker[string](q, worker.HandlerFunc[string](func(_ context.Context, s string) error {
			got <- s
			return nil
		}))
		go w.Run(ctx)

		convey.Convey("Then it is invoked and cancelling ctx stops the worker", func() {
			q.Enqueue(ctx, "hello")
			convey.So(<-got, convey.ShouldEqual, "hello")
			cancel()
			select {
			case <-w.Done():
			case <-time.After(time.Second):
				t.Fatal("worker did not stop on cancel")
			}
		})
	})
}
