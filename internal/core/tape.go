package core

import "github.com/olyamironova/matching-core/internal/domain"

// tradeTape is a ring of the most recent trades, oldest overwritten first.
type tradeTape struct {
	buf   []domain.TradeRecord
	start int
	count int
}

func newTradeTape(capacity int) *tradeTape {
	if capacity <= 0 {
		capacity = 1
	}
	return &tradeTape{buf: make([]domain.TradeRecord, capacity)}
}

func (t *tradeTape) append(tr domain.TradeRecord) {
	size := len(t.buf)
	if t.count < size {
		t.buf[(t.start+t.count)%size] = tr
		t.count++
		return
	}
	t.buf[t.start] = tr
	t.start = (t.start + 1) % size
}

// last returns up to n trades in chronological order, as a copy.
func (t *tradeTape) last(n int) []domain.TradeRecord {
	if n <= 0 || t.count == 0 {
		return []domain.TradeRecord{}
	}
	if n > t.count {
		n = t.count
	}
	size := len(t.buf)
	out := make([]domain.TradeRecord, n)
	first := (t.start + t.count - n) % size
	for i := 0; i < n; i++ {
		out[i] = t.buf[(first+i)%size]
	}
	return out
}

func (t *tradeTape) len() int { return t.count }

func (t *tradeTape) reset() {
	clear(t.buf)
	t.start, t.count = 0, 0
}
