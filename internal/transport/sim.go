package transport

import (
	"math/rand"
	"net"

	"github.com/phuwit/urft/internal/codec"
)

// DropPolicy decides whether to drop a given DATA sequence number,
// single-shot per sequence: once a sequence has been dropped, every later
// retransmission of that same sequence goes through.
type DropPolicy struct {
	rate    float64
	rnd     *rand.Rand
	dropped map[uint32]struct{}
	once    map[uint32]struct{}
}

// NewDropPolicy builds a policy that drops each DATA sequence at most once,
// with probability rate, using seed for reproducible tests.
func NewDropPolicy(rate float64, seed int64) *DropPolicy {
	return &DropPolicy{rate: rate, rnd: rand.New(rand.NewSource(seed)), dropped: make(map[uint32]struct{})}
}

// ShouldDrop reports whether sequence seq should be dropped this attempt.
func (d *DropPolicy) ShouldDrop(seq uint32) bool {
	if d == nil || d.rate <= 0 {
		return false
	}
	if _, already := d.dropped[seq]; already {
		return false
	}
	if d.rnd.Float64() < d.rate {
		d.dropped[seq] = struct{}{}
		return true
	}
	return false
}

// DropOnce drops exactly the sequence numbers in seqs, the first time each
// is sent, then lets every retransmission through. Used by deterministic
// single-drop scenario tests instead of the randomized DropPolicy.
func DropOnce(seqs ...uint32) *DropPolicy {
	d := &DropPolicy{dropped: make(map[uint32]struct{})}
	d.once = make(map[uint32]struct{}, len(seqs))
	for _, s := range seqs {
		d.once[s] = struct{}{}
	}
	return d
}

// Lossy wraps an Endpoint and applies a DropPolicy to outgoing DATA
// segments before they reach the underlying transport. Non-DATA segments
// (INIT, ACK) are never dropped by this decorator.
type Lossy struct {
	Endpoint
	Drop *DropPolicy
}

func (l *Lossy) Send(b []byte) error {
	if l.shouldDrop(b) {
		return nil
	}
	return l.Endpoint.Send(b)
}

func (l *Lossy) SendTo(b []byte, addr net.Addr) error {
	if l.shouldDrop(b) {
		return nil
	}
	return l.Endpoint.SendTo(b, addr)
}

func (l *Lossy) shouldDrop(b []byte) bool {
	if l.Drop == nil {
		return false
	}
	data, ok := codec.Decode(b).(codec.Data)
	if !ok {
		return false
	}
	if l.Drop.once != nil {
		if _, marked := l.Drop.once[data.Sequence]; marked {
			delete(l.Drop.once, data.Sequence)
			return true
		}
		return false
	}
	return l.Drop.ShouldDrop(data.Sequence)
}
