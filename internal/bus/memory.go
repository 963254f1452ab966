package bus

import (
	"context"
	"fmt"
	"sync"
)

// MemoryHub links MemoryBus instances in one process.
type MemoryHub struct {
	mu    sync.RWMutex
	buses map[string]*MemoryBus
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{buses: make(map[string]*MemoryBus)}
}

// Connect returns a new bus attached to the hub. It receives nothing until
// registered.
func (h *MemoryHub) Connect() *MemoryBus {
	return &MemoryBus{hub: h}
}

func (h *MemoryHub) deliver(msg NodeMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, b := range h.buses {
		if msg.deliverable(id) {
			b.inbox.push(msg)
		}
	}
}

// MemoryBus is a Bus whose peers live in the same MemoryHub.
type MemoryBus struct {
	hub *MemoryHub

	mu     sync.RWMutex
	nodeID string
	inbox  *inbox
}

var _ Bus = (*MemoryBus)(nil)

// Register attaches the bus to the hub under nodeID.
func (b *MemoryBus) Register(_ context.Context, nodeID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nodeID != "" {
		return fmt.Errorf("bus: already registered as %s", b.nodeID)
	}

	b.hub.mu.Lock()
	defer b.hub.mu.Unlock()
	if _, ok := b.hub.buses[nodeID]; ok {
		return fmt.Errorf("bus: node %s already registered", nodeID)
	}
	b.nodeID = nodeID
	b.inbox = newInbox()
	b.hub.buses[nodeID] = b
	return nil
}

// Unregister detaches the bus and closes its Messages channel.
func (b *MemoryBus) Unregister() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nodeID == "" {
		return nil
	}

	b.hub.mu.Lock()
	delete(b.hub.buses, b.nodeID)
	b.hub.mu.Unlock()

	b.inbox.close()
	b.nodeID = ""
	return nil
}

// Send delivers msg to every other registered bus of the hub.
func (b *MemoryBus) Send(ctx context.Context, msg NodeMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	nodeID := b.nodeID
	b.mu.RUnlock()
	if nodeID == "" {
		return fmt.Errorf("bus: send before register")
	}

	msg.SenderNodeID = nodeID
	b.hub.deliver(msg)
	return nil
}

// Messages returns the receive channel. It is nil before Register.
func (b *MemoryBus) Messages() <-chan NodeMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.inbox == nil {
		return nil
	}
	return b.inbox.out
}
