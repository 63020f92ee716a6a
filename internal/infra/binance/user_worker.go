package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

const listenKeyKeepAlive = 30 * time.Minute

// UserWorker consumes the user-data stream (fills, cancels, rejections)
// and feeds OrderUpdateEvents into the dispatcher inbox.
type UserWorker struct {
	wsURL  string
	client *Client
	inbox  chan<- event.Event
	seq    *uint64

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUserWorker creates a user-data stream worker. client is used for the
// listen-key handshake and keep-alive.
func NewUserWorker(wsURL string, client *Client, inbox chan<- event.Event, seq *uint64) *UserWorker {
	return &UserWorker{
		wsURL:  strings.TrimRight(wsURL, "/"),
		client: client,
		inbox:  inbox,
		seq:    seq,
	}
}

// Connect starts the connection loop with automatic reconnection.
func (w *UserWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)

	return nil
}

// Disconnect stops the worker and waits for the loop to exit.
func (w *UserWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}

func (w *UserWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("User worker panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("User worker connection loop stopped")
			return
		default:
		}

		err := w.connect(ctx)
		if err != nil {
			slog.Warn("User stream connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)

			delay := backoffDelay(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		w.readLoop(ctx)
	}
}

func (w *UserWorker) connect(ctx context.Context) error {
	listenKey, err := w.client.CreateListenKey(ctx)
	if err != nil {
		return fmt.Errorf("listen key handshake failed: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.wsURL+"/ws/"+listenKey, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	go w.keepAliveLoop(ctx)

	slog.Info("User data stream connected")
	return nil
}

// keepAliveLoop extends the listen key until the connection drops.
func (w *UserWorker) keepAliveLoop(ctx context.Context) {
	ticker := time.NewTicker(listenKeyKeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.client.KeepAliveListenKey(ctx); err != nil {
				slog.Warn("Listen key keep-alive failed", slog.Any("error", err))
				return
			}
		}
	}
}

func (w *UserWorker) readLoop(ctx context.Context) {
	defer w.closeConnection()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("User stream read failed", slog.Any("error", err))
			return
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		w.handleMessage(msg)
	}
}

func (w *UserWorker) handleMessage(msg []byte) {
	var frame userDataMessage
	if err := json.Unmarshal(msg, &frame); err != nil {
		return
	}
	if frame.EventType != "ORDER_TRADE_UPDATE" {
		return
	}

	// Order updates travel by value: the dispatcher matches the value
	// type, and only pooled tick events go through as pointers.
	ev := event.OrderUpdateEvent{
		BaseEvent: event.BaseEvent{
			Seq: quant.NextSeq(w.seq),
			Ts:  quant.TimeStamp(frame.EventTime * 1000),
		},
		ClientID:        frame.Order.ClientOrderID,
		Status:          mapOrderStatus(frame.Order.Status),
		FilledDeltaSats: quant.ToQtySatsStr(frame.Order.LastFilledQty),
	}

	// Fill events must not be dropped; block until the dispatcher drains.
	w.inbox <- ev
}

func (w *UserWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
