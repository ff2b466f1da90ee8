package blockwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"farmcall/internal/jsonrpc"
)

// HeadHandler receives a newHeads header pushed by an upstream
type HeadHandler func(upstreamName string, header jsonrpc.BlockHeader)

// HeadSubscriber keeps an eth_subscribe("newHeads") stream open against one upstream
type HeadSubscriber struct {
	name              string
	wsURL             string
	messageTimeout    time.Duration
	reconnectInterval time.Duration
	onHead            HeadHandler
	logger            zerolog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewHeadSubscriber creates a subscriber; call Run to start streaming
func NewHeadSubscriber(name, wsURL string, messageTimeout, reconnectInterval time.Duration, onHead HeadHandler, logger zerolog.Logger) *HeadSubscriber {
	if messageTimeout <= 0 {
		messageTimeout = 60 * time.Second
	}
	return &HeadSubscriber{
		name:              name,
		wsURL:             wsURL,
		messageTimeout:    messageTimeout,
		reconnectInterval: reconnectInterval,
		onHead:            onHead,
		logger:            logger.With().Str("upstream", name).Logger(),
	}
}

// Run streams heads until ctx is cancelled, reconnecting after every failure
func (s *HeadSubscriber) Run(ctx context.Context) {
	stop := context.AfterFunc(ctx, s.closeConn)
	defer stop()

	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			s.logger.Info().Msg("newHeads subscriber stopped (shutdown)")
			return
		}

		s.logger.Warn().
			Err(err).
			Dur("nextRetry", s.reconnectInterval).
			Msg("newHeads stream lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectInterval):
		}
	}
}

// session dials, subscribes and reads notifications until the connection fails
func (s *HeadSubscriber) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect WebSocket: %w", err)
	}
	s.setConn(conn)
	defer s.closeConn()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	req, err := jsonrpc.NewRequest(jsonrpc.MethodSubscribe, []string{jsonrpc.SubNewHeads}, jsonrpc.NextID())
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to send subscribe request: %w", err)
	}

	subID := ""
	for {
		conn.SetReadDeadline(time.Now().Add(s.messageTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		if subID == "" {
			subID, err = parseSubscribeAck(data)
			if err != nil {
				return err
			}
			if subID != "" {
				s.logger.Info().Str("subscription", subID).Msg("subscribed to newHeads")
			}
			continue
		}

		var note jsonrpc.SubscriptionNotification
		if err := json.Unmarshal(data, &note); err != nil {
			s.logger.Warn().Err(err).Int("len", len(data)).Msg("ws message parse error")
			continue
		}
		if note.Params.Subscription != subID {
			continue
		}

		var header jsonrpc.BlockHeader
		if err := json.Unmarshal(note.Params.Result, &header); err != nil {
			s.logger.Warn().Err(err).Msg("failed to parse block header")
			continue
		}
		s.onHead(s.name, header)
	}
}

// parseSubscribeAck returns the subscription ID, or "" when data is not the ack
func parseSubscribeAck(data []byte) (string, error) {
	resp, err := jsonrpc.ParseResponse(data)
	if err != nil || resp.ID.IsNull() {
		return "", nil
	}
	if resp.HasError() {
		return "", fmt.Errorf("subscription error: %s", resp.Error.Message)
	}
	var subID string
	if err := resp.GetResultAs(&subID); err != nil {
		return "", fmt.Errorf("failed to parse subscription ID: %w", err)
	}
	return subID, nil
}

func (s *HeadSubscriber) setConn(conn *websocket.Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

func (s *HeadSubscriber) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
