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

const (
	handshakeTimeout = 10 * time.Second
	readWait         = 90 * time.Second
	maxRetries       = 10
)

// TickerWorker subscribes to mark-price streams and feeds PriceTickEvents
// into the dispatcher inbox. Reconnects with exponential backoff.
type TickerWorker struct {
	wsURL   string
	symbols []string
	inbox   chan<- event.Event
	seq     *uint64

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTickerWorker creates a mark-price stream worker.
func NewTickerWorker(wsURL string, symbols []string, inbox chan<- event.Event, seq *uint64) *TickerWorker {
	return &TickerWorker{
		wsURL:   strings.TrimRight(wsURL, "/"),
		symbols: symbols,
		inbox:   inbox,
		seq:     seq,
	}
}

// Connect starts the connection loop with automatic reconnection.
func (w *TickerWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)

	return nil
}

// Disconnect stops the worker and waits for the loop to exit.
func (w *TickerWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}

func (w *TickerWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Ticker worker panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Ticker worker connection loop stopped")
			return
		default:
		}

		err := w.connect(ctx)
		if err != nil {
			slog.Warn("Ticker stream connection failed",
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

// streamURL builds the combined-stream URL for all configured symbols.
func (w *TickerWorker) streamURL() string {
	streams := make([]string, len(w.symbols))
	for i, s := range w.symbols {
		streams[i] = strings.ToLower(s) + "@markPrice@1s"
	}
	return w.wsURL + "/stream?streams=" + strings.Join(streams, "/")
}

func (w *TickerWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, w.streamURL(), nil)
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

	slog.Info("Mark price stream connected", slog.Int("symbols", len(w.symbols)))
	return nil
}

func (w *TickerWorker) readLoop(ctx context.Context) {
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
			slog.Warn("Ticker stream read failed", slog.Any("error", err))
			return
		}
		conn.SetReadDeadline(time.Now().Add(readWait))

		w.handleMessage(msg)
	}
}

// combinedFrame is the envelope of the /stream endpoint.
type combinedFrame struct {
	Stream string           `json:"stream"`
	Data   markPriceMessage `json:"data"`
}

func (w *TickerWorker) handleMessage(msg []byte) {
	var frame combinedFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return
	}
	if frame.Data.EventType != "markPriceUpdate" {
		return
	}

	ev := event.AcquirePriceTickEvent()
	ev.Seq = quant.NextSeq(w.seq)
	ev.Ts = quant.TimeStamp(frame.Data.EventTime * 1000)
	ev.Symbol = frame.Data.Symbol
	ev.PriceMicros = quant.ToPriceMicrosStr(frame.Data.MarkPrice)

	// Non-blocking send: a full inbox means the dispatcher is wedged and
	// dropping a tick is safer than stalling the read loop.
	select {
	case w.inbox <- ev:
	default:
		event.ReleasePriceTickEvent(ev)
		slog.Warn("Inbox full, price tick dropped", slog.String("symbol", frame.Data.Symbol))
	}
}

func (w *TickerWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

// backoffDelay is the reconnect schedule shared by both stream workers.
func backoffDelay(retryCount int) time.Duration {
	d := time.Second * time.Duration(1<<min(retryCount, 6))
	if d > 60*time.Second {
		d = 60 * time.Second
	}
	return d
}
