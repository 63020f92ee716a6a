package event

import (
	"sync"
)

// tickPool recycles PriceTickEvents. Ticks are by far the highest-volume
// event; pooling keeps the hotpath allocation-free.
var tickPool = sync.Pool{
	New: func() any {
		return &PriceTickEvent{}
	},
}

// AcquirePriceTickEvent returns a zeroed tick event from the pool.
func AcquirePriceTickEvent() *PriceTickEvent {
	return tickPool.Get().(*PriceTickEvent)
}

// ReleasePriceTickEvent resets and returns a tick event to the pool.
// The caller must not touch the event after release.
func ReleasePriceTickEvent(e *PriceTickEvent) {
	*e = PriceTickEvent{}
	tickPool.Put(e)
}

// Warmup pre-populates the pool so the first burst of ticks after start
// does not allocate.
func Warmup() {
	warm := make([]*PriceTickEvent, 64)
	for i := range warm {
		warm[i] = AcquirePriceTickEvent()
	}
	for _, e := range warm {
		ReleasePriceTickEvent(e)
	}
}
