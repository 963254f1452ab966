package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Iron-Ham/planningpoker/internal/logging"
)

const (
	// DefaultChannel is the LISTEN/NOTIFY channel nodes share.
	DefaultChannel = "planningpoker_nodes"

	// maxInlinePayload keeps NOTIFY payloads under PostgreSQL's 8000 byte
	// limit. Larger messages are parked in poker_node_messages and the
	// notification only carries the row id.
	maxInlinePayload = 7500

	// overflowRetention is how long parked messages are kept for slow
	// listeners.
	overflowRetention = 10 * time.Minute

	listenRetryMin = 100 * time.Millisecond
	listenRetryMax = 5 * time.Second
)

// notification is the NOTIFY payload: either the message itself or a
// reference to a parked one.
type notification struct {
	Message *NodeMessage `json:"m,omitempty"`
	Ref     int64        `json:"r,omitempty"`
}

// PostgresBus is a Bus on PostgreSQL LISTEN/NOTIFY. The node_messages
// table from the postgres storage migrations must exist.
type PostgresBus struct {
	pool    *pgxpool.Pool
	channel string
	logger  *logging.Logger

	mu     sync.RWMutex
	nodeID string
	inbox  *inbox
	cancel context.CancelFunc
	done   chan struct{}

	// listenerPID is the backend pid of the current listener connection.
	listenerPID atomic.Uint32
}

var _ Bus = (*PostgresBus)(nil)

// PostgresOption configures a PostgresBus.
type PostgresOption func(*PostgresBus)

// WithChannel overrides the notification channel name.
func WithChannel(name string) PostgresOption {
	return func(b *PostgresBus) {
		if name != "" {
			b.channel = name
		}
	}
}

// WithBusLogger sets the logger for listener failures.
func WithBusLogger(l *logging.Logger) PostgresOption {
	return func(b *PostgresBus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewPostgresBus creates a bus on pool.
func NewPostgresBus(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresBus {
	b := &PostgresBus{
		pool:    pool,
		channel: DefaultChannel,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("bus")
	return b
}

// Register acquires a dedicated connection, LISTENs on the channel and
// starts forwarding notifications. A lost listener connection is replaced
// until Unregister is called; notifications sent in between are missed.
func (b *PostgresBus) Register(ctx context.Context, nodeID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nodeID != "" {
		return fmt.Errorf("bus: already registered as %s", b.nodeID)
	}

	conn, err := b.acquireListener(ctx)
	if err != nil {
		return err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	b.nodeID = nodeID
	b.inbox = newInbox()
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.listen(listenCtx, conn, nodeID, b.inbox, b.done)
	return nil
}

func (b *PostgresBus) acquireListener(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("bus: acquire listener connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("bus: listen on %s: %w", b.channel, err)
	}
	b.listenerPID.Store(conn.Conn().PgConn().PID())
	return conn, nil
}

// releaseListener hands conn back to the pool. Pooled connections must not
// keep listening after release; a broken one is discarded by the pool.
func (b *PostgresBus) releaseListener(conn *pgxpool.Conn) {
	if !conn.Conn().IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
			b.logger.Warn("failed to unlisten", "error", err)
		}
	}
	conn.Release()
}

func (b *PostgresBus) listen(ctx context.Context, conn *pgxpool.Conn, nodeID string, in *inbox, done chan struct{}) {
	defer close(done)

	for {
		err := b.forward(ctx, conn, nodeID, in)
		b.releaseListener(conn)
		if ctx.Err() != nil {
			return
		}
		b.logger.Warn("listener connection lost", "error", err)

		conn = b.reacquire(ctx)
		if conn == nil {
			return
		}
		b.logger.Info("listener reconnected")
	}
}

// forward pushes notifications from conn into in until the connection
// fails or ctx ends.
func (b *PostgresBus) forward(ctx context.Context, conn *pgxpool.Conn, nodeID string, in *inbox) error {
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		msg, err := b.decode(ctx, []byte(n.Payload))
		if err != nil {
			b.logger.Warn("dropping undecodable node message", "error", err)
			continue
		}
		if msg.deliverable(nodeID) {
			in.push(msg)
		}
	}
}

// reacquire retries acquireListener with capped exponential backoff. It
// returns nil once ctx ends.
func (b *PostgresBus) reacquire(ctx context.Context) *pgxpool.Conn {
	delay := listenRetryMin
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		conn, err := b.acquireListener(ctx)
		if err == nil {
			return conn
		}
		if ctx.Err() != nil {
			return nil
		}
		b.logger.Warn("failed to restore listener", "error", err, "retry_in", delay)
		delay = min(delay*2, listenRetryMax)
	}
}

func (b *PostgresBus) decode(ctx context.Context, payload []byte) (NodeMessage, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return NodeMessage{}, err
	}
	if n.Message != nil {
		return *n.Message, nil
	}

	var raw []byte
	err := b.pool.QueryRow(ctx, `SELECT payload FROM poker_node_messages WHERE id = $1`, n.Ref).Scan(&raw)
	if err != nil {
		return NodeMessage{}, fmt.Errorf("load parked message %d: %w", n.Ref, err)
	}
	var msg NodeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return NodeMessage{}, err
	}
	return msg, nil
}

// Unregister stops the listener and releases its connection.
func (b *PostgresBus) Unregister() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nodeID == "" {
		return nil
	}

	b.cancel()
	<-b.done
	b.inbox.close()
	b.nodeID = ""
	return nil
}

// Send publishes msg with NOTIFY, parking it in a table first when it is
// too large for a notification payload.
func (b *PostgresBus) Send(ctx context.Context, msg NodeMessage) error {
	b.mu.RLock()
	nodeID := b.nodeID
	b.mu.RUnlock()
	if nodeID == "" {
		return fmt.Errorf("bus: send before register")
	}
	msg.SenderNodeID = nodeID

	payload, err := json.Marshal(notification{Message: &msg})
	if err != nil {
		return fmt.Errorf("bus: encode message: %w", err)
	}
	if len(payload) > maxInlinePayload {
		payload, err = b.park(ctx, msg)
		if err != nil {
			return err
		}
	}

	if _, err := b.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, b.channel, string(payload)); err != nil {
		return fmt.Errorf("bus: notify: %w", err)
	}
	return nil
}

func (b *PostgresBus) park(ctx context.Context, msg NodeMessage) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("bus: encode message: %w", err)
	}

	var id int64
	err = b.pool.QueryRow(ctx, `INSERT INTO poker_node_messages (payload) VALUES ($1) RETURNING id`, raw).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("bus: park message: %w", err)
	}
	if _, err := b.pool.Exec(ctx, `DELETE FROM poker_node_messages WHERE created_at < $1`, time.Now().Add(-overflowRetention)); err != nil {
		b.logger.Warn("failed to prune parked messages", "error", err)
	}
	return json.Marshal(notification{Ref: id})
}

// Messages returns the receive channel. It is nil before Register.
func (b *PostgresBus) Messages() <-chan NodeMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.inbox == nil {
		return nil
	}
	return b.inbox.out
}
