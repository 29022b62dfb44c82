package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeLog, Data: LogData{Level: "info", Line: "hi"}})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		assert.Equal(t, TypeLog, e.Type)
		assert.False(t, e.Time.IsZero())
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TypeStatus})
	b.Publish(Event{Type: TypeQR})

	e := <-ch
	assert.Equal(t, TypeStatus, e.Type)
	assert.Empty(t, ch)
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	b.Publish(Event{Type: TypeCycle})
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				b.Publish(Event{Type: TypeLog})
			}
		}()
	}
	for range 50 {
		_, unsub := b.Subscribe(2)
		unsub()
	}
	wg.Wait()
}

func TestNopSubscriptionIsClosed(t *testing.T) {
	ch, unsub := Nop().Subscribe(4)
	defer unsub()
	_, ok := <-ch
	require.False(t, ok)
}
