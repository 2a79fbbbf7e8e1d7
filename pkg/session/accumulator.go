package session

// Accumulator collects the binary frames of one utterance. It is owned by a
// single session goroutine and is not safe for concurrent use.
type Accumulator struct {
	buf []byte
}

func (a *Accumulator) Append(p []byte) {
	a.buf = append(a.buf, p...)
}

func (a *Accumulator) Len() int { return len(a.buf) }

// Drain returns everything collected so far and starts a fresh buffer, so
// frames arriving later belong to the next utterance.
func (a *Accumulator) Drain() []byte {
	out := a.buf
	a.buf = nil
	return out
}

func (a *Accumulator) Reset() { a.buf = nil }
