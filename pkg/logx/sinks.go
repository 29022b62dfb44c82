package logx

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const alertTimeout = 10 * time.Second

// sink is a zerolog output that filters by level and rate before handing
// the raw JSON line to emit. It never blocks the caller.
type sink struct {
	min  zerolog.Level
	lim  *rate.Limiter
	emit func(level zerolog.Level, p []byte)
}

func newSink(minLevel string, defMin zerolog.Level, perSec, defPerSec int, emit func(zerolog.Level, []byte)) *sink {
	if perSec <= 0 {
		perSec = defPerSec
	}
	return &sink{
		min:  parseLevel(minLevel, defMin),
		lim:  rate.NewLimiter(rate.Limit(perSec), perSec),
		emit: emit,
	}
}

func (s *sink) Write(p []byte) (int, error) { return s.WriteLevel(zerolog.InfoLevel, p) }

func (s *sink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level >= s.min && s.lim.Allow() {
		s.emit(level, p)
	}
	return len(p), nil
}

// alertQueue delivers rendered alerts from a single worker goroutine.
type alertQueue struct {
	ch     chan string
	sender func() Sender
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startAlertQueue(size int, sender func() Sender) *alertQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &alertQueue{ch: make(chan string, size), sender: sender, cancel: cancel}
	q.wg.Add(1)
	go q.run(ctx)
	return q
}

// push drops the alert when no sender is set or the queue is full.
func (q *alertQueue) push(_ zerolog.Level, p []byte) {
	if q.sender() == nil {
		return
	}
	msg := render(p, true)
	if msg == "" {
		return
	}
	select {
	case q.ch <- msg:
	default:
	}
}

func (q *alertQueue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q.ch:
			sender := q.sender()
			if sender == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, alertTimeout)
			_ = sender.SendText(sctx, msg)
			cancel()
		}
	}
}

func (q *alertQueue) stop() {
	q.cancel()
	q.wg.Wait()
}
