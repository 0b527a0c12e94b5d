package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"phoenix-pipeline/internal/domain"
)

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"
)

// subscriptionQuery streams every new swap as the indexer records it.
const subscriptionQuery = `subscription NewSwaps {
    swaps(orderBy: timestamp, orderDirection: desc, first: 1) {
        id
        transaction {
            id
        }
        timestamp
        blockNumber
        token0 {
            symbol
            id
        }
        token1 {
            symbol
            id
        }
        amount0
        amount1
        sqrtPriceX96
    }
}`

// StreamConfig configures the subscription stream.
type StreamConfig struct {
	// HandshakeTimeout bounds the websocket dial and init handshake.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds each outgoing frame.
	WriteTimeout time.Duration
	// PingInterval is the interval for protocol-level ping messages.
	PingInterval time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Stream delivers live swap events over a graphql-transport-ws subscription.
type Stream struct {
	endpoint string
	config   StreamConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	nextID atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewStream connects to a graphql-transport-ws endpoint and completes the
// connection handshake.
func NewStream(ctx context.Context, endpoint string, config *StreamConfig, logger *log.Logger) (*Stream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Stream{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Subprotocols:     []string{"graphql-transport-ws"},
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	s.conn = conn

	if err := s.write(wsMessage{Type: msgConnectionInit}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connection init: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout))
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read connection ack: %w", err)
	}
	if ack.Type != msgConnectionAck {
		conn.Close()
		return nil, fmt.Errorf("expected connection_ack, got %q", ack.Type)
	}
	conn.SetReadDeadline(time.Time{})

	return s, nil
}

// Subscribe starts the swap subscription and delivers events on the returned
// channel. The channel closes when the server completes the subscription, the
// connection drops, or ctx is cancelled.
func (s *Stream) Subscribe(ctx context.Context) (<-chan domain.SwapEvent, error) {
	id := fmt.Sprintf("sub-%d", s.nextID.Add(1))

	payload, err := json.Marshal(map[string]string{"query": subscriptionQuery})
	if err != nil {
		return nil, fmt.Errorf("marshal subscription: %w", err)
	}
	if err := s.write(wsMessage{ID: id, Type: msgSubscribe, Payload: payload}); err != nil {
		return nil, fmt.Errorf("send subscribe: %w", err)
	}

	events := make(chan domain.SwapEvent, 16)

	s.wg.Add(1)
	go s.readLoop(ctx, id, events)
	s.wg.Add(1)
	go s.pingLoop()

	return events, nil
}

func (s *Stream) readLoop(ctx context.Context, subID string, events chan<- domain.SwapEvent) {
	defer s.wg.Done()
	defer close(events)

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Printf("Subscription read error: %v", err)
			}
			return
		}

		switch msg.Type {
		case msgPing:
			if err := s.write(wsMessage{Type: msgPong}); err != nil {
				s.logger.Printf("Pong write failed: %v", err)
				return
			}
		case msgNext:
			if msg.ID != subID {
				continue
			}
			var next struct {
				Data struct {
					Swaps []json.RawMessage `json:"swaps"`
				} `json:"data"`
			}
			if err := json.Unmarshal(msg.Payload, &next); err != nil {
				s.logger.Printf("Skipping malformed subscription payload: %v", err)
				continue
			}
			for _, raw := range next.Data.Swaps {
				event, err := parseSwap(raw)
				if err != nil {
					s.logger.Printf("Skipping malformed streamed swap: %v", err)
					continue
				}
				select {
				case events <- event:
				case <-s.done:
					return
				}
			}
		case msgError:
			s.logger.Printf("Subscription error payload: %s", firstN(string(msg.Payload), 200))
			return
		case msgComplete:
			s.logger.Printf("Subscription %s completed by server", subID)
			return
		}
	}
}

func (s *Stream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.write(wsMessage{Type: msgPing}); err != nil {
				s.logger.Printf("Ping write failed: %v", err)
				return
			}
		}
	}
}

func (s *Stream) write(msg wsMessage) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteJSON(msg)
}

// Close terminates the subscription and the underlying connection.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
