package marketdata

import (
	"sync/atomic"

	"github.com/algo-trading/tastytrade/internal/domain"
)

// TickRingBuffer keeps the most recent ticks for a symbol without locking
// readers against the receive path.
type TickRingBuffer struct {
	ticks []atomic.Pointer[domain.Tick]
	head  atomic.Uint64
	cap   uint64
}

func NewTickRingBuffer(capacity int) *TickRingBuffer {
	return &TickRingBuffer{
		ticks: make([]atomic.Pointer[domain.Tick], capacity),
		cap:   uint64(capacity),
	}
}

func (rb *TickRingBuffer) Push(tick *domain.Tick) {
	idx := rb.head.Add(1) - 1
	rb.ticks[idx%rb.cap].Store(tick)
}

func (rb *TickRingBuffer) Recent(n int) []*domain.Tick {
	head := rb.head.Load()
	if head == 0 {
		return nil
	}

	count := uint64(n)
	if count > rb.cap {
		count = rb.cap
	}
	if count > head {
		count = head
	}

	result := make([]*domain.Tick, 0, count)
	start := head - count
	for i := start; i < head; i++ {
		t := rb.ticks[i%rb.cap].Load()
		if t != nil {
			result = append(result, t)
		}
	}
	return result
}
