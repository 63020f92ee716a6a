package backtest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// Tick is one recorded market data point in a replay file (JSON lines).
type Tick struct {
	Symbol      string            `json:"symbol"`
	PriceMicros quant.PriceMicros `json:"price"`
	TsUnixM     quant.TimeStamp   `json:"ts"`
}

// Replayer feeds recorded price ticks into a dispatcher inbox so
// strategies can be exercised against historical data on the paper
// gateway. Replay is synchronous per tick: each event is posted in
// recorded order, stamped with a fresh sequence number.
type Replayer struct {
	r   io.Reader
	seq *uint64
}

func NewReplayer(r io.Reader, seq *uint64) *Replayer {
	return &Replayer{r: r, seq: seq}
}

// OpenReplayer opens a JSON-lines tick file for replay. The caller
// owns the returned closer.
func OpenReplayer(path string, seq *uint64) (*Replayer, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return NewReplayer(f, seq), f, nil
}

// Run streams every tick into the inbox, in order, until the source is
// exhausted or ctx is cancelled. Returns the number of ticks replayed.
func (r *Replayer) Run(ctx context.Context, inbox chan<- event.Event) (int, error) {
	scanner := bufio.NewScanner(r.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	n := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var t Tick
		if err := json.Unmarshal(line, &t); err != nil {
			return n, fmt.Errorf("bad tick at line %d: %w", n+1, err)
		}
		if t.Symbol == "" || t.PriceMicros <= 0 {
			slog.Warn("skipping malformed tick", slog.Int("line", n+1))
			continue
		}

		ev := event.AcquirePriceTickEvent()
		ev.Seq = quant.NextSeq(r.seq)
		ev.Ts = t.TsUnixM
		ev.Symbol = t.Symbol
		ev.PriceMicros = t.PriceMicros

		select {
		case inbox <- ev:
			n++
		case <-ctx.Done():
			event.ReleasePriceTickEvent(ev)
			return n, ctx.Err()
		}
	}
	return n, scanner.Err()
}
