package wsserver

import (
	"sync"
	"time"
)

// pingTicker fans a single time.Ticker out to every live connection's ping
// subscription, adapted from the teacher's mTicker: one timer drives an
// arbitrary number of subscribers instead of one timer per connection.
type pingTicker struct {
	mu          sync.Mutex
	subscribers map[*pingSub]struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	ticker   *time.Ticker
}

type pingSub struct {
	tick chan time.Time
}

func newPingTicker(interval time.Duration) *pingTicker {
	t := &pingTicker{
		subscribers: make(map[*pingSub]struct{}),
		stopCh:      make(chan struct{}),
		ticker:      time.NewTicker(interval),
	}
	go t.run()
	return t
}

func (t *pingTicker) run() {
	for {
		select {
		case now := <-t.ticker.C:
			t.mu.Lock()
			for sub := range t.subscribers {
				select {
				case sub.tick <- now:
				default:
					// Subscriber hasn't drained the previous tick; drop
					// this one rather than block the fanout.
				}
			}
			t.mu.Unlock()
		case <-t.stopCh:
			return
		}
	}
}

func (t *pingTicker) subscribe() *pingSub {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub := &pingSub{tick: make(chan time.Time, 1)}
	t.subscribers[sub] = struct{}{}
	return sub
}

func (t *pingTicker) unsubscribe(sub *pingSub) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, sub)
}

func (t *pingTicker) stop() {
	t.stopOnce.Do(func() {
		t.ticker.Stop()
		close(t.stopCh)
	})
}
