package trace

import (
	"fmt"
	"sync"
	"time"
)

// Heartbeat emits a liveness event at a fixed interval with the number of
// spans still open. A run of beats with the same open count usually means
// a worker is stuck on one plugin call.
type Heartbeat struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartHeartbeat returns nil when tracing is off or every is not positive.
func StartHeartbeat(t Tracer, every time.Duration) *Heartbeat {
	if t == nil || !t.Enabled() || every <= 0 {
		return nil
	}
	h := &Heartbeat{stop: make(chan struct{}), done: make(chan struct{})}
	go h.beat(t, every)
	return h
}

func (h *Heartbeat) beat(t Tracer, every time.Duration) {
	defer close(h.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			t.Emit(&Event{
				Time:   now,
				Seq:    NextSeq(),
				Kind:   KindHeartbeat,
				Scope:  ScopeDriver,
				Name:   "heartbeat",
				Detail: fmt.Sprintf("#%d, %d open", n, OpenSpans()),
			})
		}
	}
}

// Stop ends the heartbeat and waits for its goroutine. Safe on nil and
// safe to call twice.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
