package session

import "sync"

// StageChange is emitted on every successful stage transition. Callers that
// drive a UI subscribe to refresh views; the pipeline itself never calls back
// into any UI layer.
type StageChange struct {
	SessionID string
	From      Stage
	To        Stage
}

// notifier fans StageChange events out to subscribers. Publishing never
// blocks the pipeline: a subscriber that stops draining its channel loses
// events rather than stalling stage transitions.
type notifier struct {
	mu   sync.Mutex
	subs map[int]chan StageChange
	next int
}

const subscriberBuffer = 16

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]chan StageChange)}
}

// subscribe registers a new subscriber. The returned cancel func removes the
// subscription and closes the channel.
func (n *notifier) subscribe() (<-chan StageChange, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.next
	n.next++
	ch := make(chan StageChange, subscriberBuffer)
	n.subs[id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// publish delivers the event to every subscriber with room in its buffer.
func (n *notifier) publish(ev StageChange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
