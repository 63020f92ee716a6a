package strategy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/makwana23-Harshil/binance-bot/internal/domain"
	"github.com/makwana23-Harshil/binance-bot/internal/event"
	"github.com/makwana23-Harshil/binance-bot/pkg/quant"
)

// fakeWriter is an in-memory OrderWriter that records every call and
// assigns sequential client ids.
type fakeWriter struct {
	n         int
	submits   []domain.Order
	cancels   []string
	submitErr error
}

func (w *fakeWriter) Submit(ctx context.Context, o domain.Order) (string, error) {
	if w.submitErr != nil {
		return "", w.submitErr
	}
	if o.ClientID == "" {
		w.n++
		o.ClientID = fmt.Sprintf("child-%d", w.n)
	}
	o.Status = domain.StatusPending
	w.submits = append(w.submits, o)
	return o.ClientID, nil
}

func (w *fakeWriter) Cancel(ctx context.Context, clientID string) error {
	w.cancels = append(w.cancels, clientID)
	return nil
}

func (w *fakeWriter) Get(clientID string) (domain.Order, bool) {
	for _, o := range w.submits {
		if o.ClientID == clientID {
			return o, true
		}
	}
	return domain.Order{}, false
}

// fill returns the submitted order updated to the given status with the
// full quantity executed when terminal.
func (w *fakeWriter) update(clientID string, status domain.OrderStatus) domain.Order {
	o, _ := w.Get(clientID)
	o.Status = status
	if status == domain.StatusFilled {
		o.FilledQtySats = o.QtySats
	}
	return o
}

// lastSubmit returns the most recent submission.
func (w *fakeWriter) lastSubmit() domain.Order {
	return w.submits[len(w.submits)-1]
}

type testTimer struct {
	scheduled int
}

func (t *testTimer) schedule(strategyID string, d time.Duration) { t.scheduled++ }

func newTestEnv(w *fakeWriter, timer *testTimer) Env {
	var seq uint64
	return Env{
		Orders: w,
		Timer:  timer.schedule,
		Emit:   func(ev event.Event) {},
		Base: func() event.BaseEvent {
			return event.BaseEvent{Seq: quant.NextSeq(&seq), Ts: quant.Now()}
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}
