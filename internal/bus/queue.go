package bus

import "sync"

// inbox is an unbounded FIFO feeding a channel, so senders never block on
// a slow receiver.
type inbox struct {
	mu     sync.Mutex
	queue  []NodeMessage
	signal chan struct{}
	out    chan NodeMessage
	done   chan struct{}
	once   sync.Once
}

func newInbox() *inbox {
	in := &inbox{
		signal: make(chan struct{}, 1),
		out:    make(chan NodeMessage),
		done:   make(chan struct{}),
	}
	go in.pump()
	return in
}

func (in *inbox) push(msg NodeMessage) {
	in.mu.Lock()
	in.queue = append(in.queue, msg)
	in.mu.Unlock()

	select {
	case in.signal <- struct{}{}:
	default:
	}
}

func (in *inbox) pump() {
	defer close(in.out)
	for {
		in.mu.Lock()
		if len(in.queue) == 0 {
			in.mu.Unlock()
			select {
			case <-in.signal:
				continue
			case <-in.done:
				return
			}
		}
		msg := in.queue[0]
		in.queue[0] = NodeMessage{}
		in.queue = in.queue[1:]
		in.mu.Unlock()

		select {
		case in.out <- msg:
		case <-in.done:
			return
		}
	}
}

func (in *inbox) close() {
	in.once.Do(func() { close(in.done) })
}
