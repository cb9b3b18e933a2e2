package network

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EpochWatcherConfig configures WebSocket epoch subscription behavior.
type EpochWatcherConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultEpochWatcherConfig returns default watcher configuration.
func DefaultEpochWatcherConfig() EpochWatcherConfig {
	return EpochWatcherConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       120 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

const epochSubscription = `subscription { graphNetworks(first: 1) { currentEpoch } }`

// EpochWatcher subscribes to network epoch changes over graphql-ws and
// emits each new epoch exactly once. Reallocation runs are keyed to epoch
// boundaries, so duplicates from reconnect replays are filtered out.
type EpochWatcher struct {
	endpoint string
	config   EpochWatcherConfig
	log      zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool
	opID   atomic.Uint64

	lastEpoch atomic.Int64
	epochs    chan int64

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewEpochWatcher connects to the endpoint, performs the graphql-ws
// handshake and starts the subscription.
func NewEpochWatcher(ctx context.Context, endpoint string, config *EpochWatcherConfig, log zerolog.Logger) (*EpochWatcher, error) {
	cfg := DefaultEpochWatcherConfig()
	if config != nil {
		cfg = *config
	}

	w := &EpochWatcher{
		endpoint: endpoint,
		config:   cfg,
		log:      log,
		epochs:   make(chan int64, 16),
		done:     make(chan struct{}),
	}
	w.lastEpoch.Store(-1)

	if err := w.connect(ctx); err != nil {
		return nil, err
	}

	w.wg.Add(1)
	go w.readLoop()

	w.wg.Add(1)
	go w.pingLoop()

	return w, nil
}

// Epochs returns the channel of observed epoch numbers. The channel is
// closed on Close.
func (w *EpochWatcher) Epochs() <-chan int64 {
	return w.epochs
}

// connect dials the endpoint, completes the connection_init handshake and
// sends the epoch subscription.
func (w *EpochWatcher) connect(ctx context.Context) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"graphql-transport-ws"},
	}

	conn, _, err := dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	if err := conn.WriteJSON(gwsMessage{Type: "connection_init"}); err != nil {
		conn.Close()
		return fmt.Errorf("write connection_init: %w", err)
	}

	// Wait for connection_ack before subscribing
	conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
	var ack gwsMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return fmt.Errorf("read connection_ack: %w", err)
	}
	if ack.Type != "connection_ack" {
		conn.Close()
		return fmt.Errorf("handshake failed: got %q, want connection_ack", ack.Type)
	}

	id := fmt.Sprintf("%d", w.opID.Add(1))
	sub := gwsMessage{
		ID:   id,
		Type: "subscribe",
	}
	payload, err := json.Marshal(gqlRequest{Query: epochSubscription})
	if err != nil {
		conn.Close()
		return fmt.Errorf("marshal subscription: %w", err)
	}
	sub.Payload = payload

	conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	w.conn = conn
	return nil
}

// Close closes the connection and the epochs channel.
func (w *EpochWatcher) Close() error {
	if w.closed.Swap(true) {
		return nil // Already closed
	}

	close(w.done)

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.conn.Close()
	}
	w.connMu.Unlock()

	w.wg.Wait()
	close(w.epochs)
	return nil
}

// readLoop reads subscription messages and dispatches epoch changes.
func (w *EpochWatcher) readLoop() {
	defer w.wg.Done()

	reconnectDelay := w.config.ReconnectDelay

	for !w.closed.Load() {
		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()

		if conn == nil {
			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if w.closed.Load() {
				return
			}

			if !w.reconnecting.Swap(true) {
				go w.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > w.config.MaxReconnectDelay {
				reconnectDelay = w.config.MaxReconnectDelay
			}

			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = w.config.ReconnectDelay

		w.handleMessage(message)
	}
}

// reconnect re-dials and restarts the subscription. The epoch dedup in
// handleMessage absorbs the replayed current value after resubscribe.
func (w *EpochWatcher) reconnect(delay time.Duration) {
	defer w.reconnecting.Store(false)

	if w.closed.Load() {
		return
	}

	select {
	case <-w.done:
		return
	case <-time.After(delay):
	}

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.connect(ctx); err != nil {
		w.log.Warn().Err(err).Msg("epoch watcher reconnect failed")
		return
	}

	w.log.Info().Msg("epoch watcher reconnected")
}

// handleMessage processes one graphql-ws frame.
func (w *EpochWatcher) handleMessage(message []byte) {
	var msg gwsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "next":
		var payload struct {
			Data struct {
				GraphNetworks []struct {
					CurrentEpoch int64 `json:"currentEpoch"`
				} `json:"graphNetworks"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			w.log.Warn().Err(err).Msg("malformed epoch notification")
			return
		}
		if len(payload.Data.GraphNetworks) == 0 {
			return
		}

		epoch := payload.Data.GraphNetworks[0].CurrentEpoch
		if epoch <= w.lastEpoch.Load() {
			return
		}
		w.lastEpoch.Store(epoch)

		// Block until consumed - epoch boundaries must not be dropped
		select {
		case w.epochs <- epoch:
		case <-w.done:
		}

	case "error":
		w.log.Warn().RawJSON("payload", msg.Payload).Msg("subscription error")

	case "complete":
		w.log.Info().Msg("subscription completed by server")

	case "ping":
		w.connMu.Lock()
		if w.conn != nil {
			w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
			w.conn.WriteJSON(gwsMessage{Type: "pong"})
		}
		w.connMu.Unlock()
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (w *EpochWatcher) pingLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.connMu.Lock()
			if w.conn != nil {
				w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
				if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			w.connMu.Unlock()
		}
	}
}

// gwsMessage is a graphql-transport-ws protocol frame.
type gwsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
