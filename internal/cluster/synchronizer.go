package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/planningpoker/internal/bus"
	"github.com/Iron-Ham/planningpoker/internal/event"
	"github.com/Iron-Ham/planningpoker/internal/logging"
	"github.com/Iron-Ham/planningpoker/internal/poker"
	"github.com/Iron-Ham/planningpoker/internal/registry"
)

// Defaults applied when an option is not given.
const (
	DefaultInitializationTimeout        = 60 * time.Second
	DefaultInitializationMessageTimeout = 60 * time.Second
	sendTimeout                         = 10 * time.Second
)

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithNodeID sets the node id. A random UUID is used otherwise.
func WithNodeID(id string) Option {
	return func(s *Synchronizer) {
		if id != "" {
			s.nodeID = id
		}
	}
}

// WithInitializationTimeout bounds the wait for the first TeamList reply.
func WithInitializationTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.initTimeout = d
		}
	}
}

// WithInitializationMessageTimeout bounds the silence between
// InitializeTeam replies before the hand-off restarts.
func WithInitializationMessageTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.messageTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Synchronizer links one registry to its peers over a bus.
type Synchronizer struct {
	registry       *registry.Registry
	bus            bus.Bus
	logger         *logging.Logger
	nodeID         string
	initTimeout    time.Duration
	messageTimeout time.Duration

	// hand-off state, guarded by mu; changed is closed on every change
	mu           sync.Mutex
	changed      chan struct{}
	listReceived bool
	initialized  bool
	pending      map[string]string

	teamLists    chan bus.NodeMessage
	initProgress chan struct{}

	processingMu sync.Mutex
	processing   map[string]int

	subscriptions []string
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// New creates a Synchronizer for reg on b. Call Start to join the cluster.
func New(reg *registry.Registry, b bus.Bus, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		registry:       reg,
		bus:            b,
		logger:         logging.NopLogger(),
		nodeID:         uuid.NewString(),
		initTimeout:    DefaultInitializationTimeout,
		messageTimeout: DefaultInitializationMessageTimeout,
		changed:        make(chan struct{}),
		pending:        make(map[string]string),
		teamLists:      make(chan bus.NodeMessage, 16),
		initProgress:   make(chan struct{}, 1),
		processing:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("cluster").WithNode(s.nodeID)
	return s
}

// NodeID returns this node's id on the bus.
func (s *Synchronizer) NodeID() string { return s.nodeID }

// Start registers on the bus, hooks into the registry and begins the
// startup hand-off in the background.
func (s *Synchronizer) Start(ctx context.Context) error {
	if err := s.bus.Register(ctx, s.nodeID); err != nil {
		return fmt.Errorf("cluster: register node: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	events := s.registry.Bus()
	s.subscriptions = []string{
		events.Subscribe(event.TypeTeamMessage, s.onTeamMessage),
		events.Subscribe(event.TypeTeamAdded, s.onTeamAdded),
	}
	s.registry.SetGate(s)

	messages := s.bus.Messages()
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.receive(runCtx, messages)
	}()
	go func() {
		defer s.wg.Done()
		s.initialize(runCtx)
	}()

	s.logger.Info("node started")
	return nil
}

// Stop leaves the cluster and waits for the background work to end.
func (s *Synchronizer) Stop() error {
	if s.cancel == nil {
		return nil
	}
	s.registry.SetGate(nil)
	for _, id := range s.subscriptions {
		s.registry.Bus().Unsubscribe(id)
	}
	s.cancel()
	err := s.bus.Unregister()
	s.wg.Wait()
	s.cancel = nil
	s.logger.Info("node stopped")
	return err
}

func (s *Synchronizer) send(ctx context.Context, typ bus.MessageType, recipient string, data any) {
	msg, err := bus.NewNodeMessage(typ, data)
	if err != nil {
		s.logger.Error("failed to encode node message", "type", typ, "error", err)
		return
	}
	msg.RecipientNodeID = recipient

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := s.bus.Send(ctx, msg); err != nil {
		s.logger.Warn("failed to send node message", "type", typ, "recipient", recipient, "error", err)
	}
}

// onTeamMessage forwards a local team mutation. It runs under the team lock.
func (s *Synchronizer) onTeamMessage(e event.Event) {
	ev := e.(event.TeamMessageEvent)
	switch ev.Message.Type {
	case poker.MessageEmpty, poker.MessageEstimateEnded:
		return
	}
	if s.isProcessing(ev.TeamName) {
		return
	}
	s.send(context.Background(), bus.TypeTeamMessage, "", teamMessagePayload{
		TeamName: ev.TeamName,
		Message:  ev.Message,
	})
}

// onTeamAdded ships the snapshot of a team created or attached on this
// node. Loaded teams are already in the shared storage.
func (s *Synchronizer) onTeamAdded(e event.Event) {
	ev := e.(event.TeamAddedEvent)
	if ev.Origin == event.OriginLoaded || s.isProcessing(ev.TeamName) {
		return
	}
	snapshot, err := json.Marshal(ev.Team)
	if err != nil {
		s.logger.WithTeam(ev.TeamName).Error("failed to encode team snapshot", "error", err)
		return
	}
	s.send(context.Background(), bus.TypeTeamCreated, "", json.RawMessage(snapshot))
}

func (s *Synchronizer) isProcessing(teamName string) bool {
	s.processingMu.Lock()
	defer s.processingMu.Unlock()
	return s.processing[poker.NameKey(teamName)] > 0
}

// whileProcessing runs fn with outgoing propagation for teamName muted.
func (s *Synchronizer) whileProcessing(teamName string, fn func() error) error {
	key := poker.NameKey(teamName)
	s.processingMu.Lock()
	s.processing[key]++
	s.processingMu.Unlock()

	defer func() {
		s.processingMu.Lock()
		s.processing[key]--
		if s.processing[key] == 0 {
			delete(s.processing, key)
		}
		s.processingMu.Unlock()
	}()
	return fn()
}
