// Package receiver implements the receiving endpoint of the reliable file
// transfer protocol: it waits for INIT, then reassembles DATA segments
// into a contiguous on-disk prefix, batches ACKs, and infers completion
// from a sustained quiet period.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/phuwit/urft/internal/codec"
	"github.com/phuwit/urft/internal/config"
	"github.com/phuwit/urft/internal/logging"
	"github.com/phuwit/urft/internal/metrics"
	"github.com/phuwit/urft/internal/store"
	"github.com/phuwit/urft/internal/transport"
)

// ErrTruncatedTransfer is returned when the receiver's silence-based
// termination fires before next_expected reached the announced
// file_size.
var ErrTruncatedTransfer = errors.New("receiver: transfer ended before the announced size was reached")

// Result reports what a completed Receive produced.
type Result struct {
	Path     string
	FileName string
	FileSize uint32
}

// Receiver accepts exactly one transfer per call to Receive: no session
// identifier, no concurrent transfers.
type Receiver struct {
	ep     transport.Endpoint
	outDir string
}

// New builds a Receiver that accepts one transfer over ep, writing the
// output file into outDir (the current working directory, if empty).
func New(ep transport.Endpoint, outDir string) *Receiver {
	if outDir == "" {
		outDir = "."
	}
	return &Receiver{ep: ep, outDir: outDir}
}

// Receive runs the two-phase state machine to completion: Phase A awaits
// INIT, Phase B reassembles DATA until silence (or ctx cancellation)
// ends the transfer.
func (r *Receiver) Receive(ctx context.Context) (Result, error) {
	defer r.ep.Close()
	log := logging.Receiver

	init, peer, err := r.awaitInit(ctx, log)
	if err != nil {
		return Result{}, err
	}

	outPath := filepath.Join(r.outDir, init.FileName)
	sink, err := store.CreateSink(outPath)
	if err != nil {
		return Result{}, fmt.Errorf("receiver: create output %s: %w", outPath, err)
	}
	defer sink.Close()

	log = log.WithField("file", init.FileName)
	log.Infof("[RECV] INIT size=%d", init.FileSize)

	m := metrics.NewTransfer()
	defer func() {
		m.Finish()
		log.Infof("[RECV] %d segments received, %.0f B/s average", m.SegmentsReceived, m.AverageSpeed())
	}()

	nextExpected, termErr := r.reassemble(ctx, sink, init.FileSize, peer, log, m)
	if termErr != nil {
		return Result{}, termErr
	}

	if uint32(nextExpected) < init.FileSize {
		return Result{}, fmt.Errorf("%w: got %d of %d bytes", ErrTruncatedTransfer, nextExpected, init.FileSize)
	}

	log.Infof("[RECV] transfer complete, %d bytes written", nextExpected)
	return Result{Path: outPath, FileName: init.FileName, FileSize: init.FileSize}, nil
}

// awaitInit is Phase A: poll until a valid INIT arrives, ACK it, and
// learn the peer address every subsequent ACK targets.
func (r *Receiver) awaitInit(ctx context.Context, log logging.FieldLogger) (codec.Init, net.Addr, error) {
	for {
		if err := ctx.Err(); err != nil {
			return codec.Init{}, nil, err
		}
		raw, from, err := r.ep.Receive(config.ConsecutivePacketsTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			return codec.Init{}, nil, fmt.Errorf("receiver: await INIT: %w", err)
		}
		if len(raw) == 0 {
			continue
		}
		init, ok := codec.Decode(raw).(codec.Init)
		if !ok {
			continue
		}
		if err := r.ep.SendTo(codec.EncodeAck(config.InitSequence), from); err != nil {
			log.Warnf("[RECV] failed to ACK INIT: %v", err)
		}
		return init, from, nil
	}
}

// reassembleState holds everything Phase B threads through one poll cycle:
// the out-of-order buffer, the queued-but-unsent ACKs, the ACK-batch
// deadline, and the count of consecutive empty segments. Total silence is
// tracked separately, by reassemble's own lastActivity timestamp.
type reassembleState struct {
	nextExpected int64
	pending      map[uint32][]byte
	pendingAcks  []uint32
	ackArmed     bool
	sendAckAt    time.Time
	nulls        int
}

// reassemble is Phase B: drain DATA into the contiguous prefix, batch
// ACKs, and terminate on a sustained quiet period, benign or not. It
// returns the final next_expected offset; the caller decides whether
// that offset reaching fileSize means success.
func (r *Receiver) reassemble(ctx context.Context, sink store.Sink, fileSize uint32, peer net.Addr, log logging.FieldLogger, m *metrics.Transfer) (int64, error) {
	st := &reassembleState{pending: make(map[uint32][]byte)}
	lastActivity := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return st.nextExpected, err
		}

		raw, _, err := r.ep.Receive(config.ConsecutivePacketsTimeout)
		if err != nil {
			if !errors.Is(err, transport.ErrTimeout) {
				return st.nextExpected, fmt.Errorf("receiver: reassemble: %w", err)
			}
			if silence := time.Since(lastActivity); silence >= config.OuterSilenceTimeout {
				log.Warnf("[RECV] no traffic for %s, ending transfer", silence)
				return st.nextExpected, nil
			}
			r.maybeFlushAcks(st, peer, log)
			continue
		}
		lastActivity = time.Now()

		if len(raw) == 0 {
			st.nulls++
			if st.nulls > config.ConnectionEndNullsCount {
				log.Infof("[RECV] %d consecutive empty segments, ending transfer", st.nulls)
				return st.nextExpected, nil
			}
			r.armSendAck(st)
			r.maybeFlushAcks(st, peer, log)
			continue
		}

		switch seg := codec.Decode(raw).(type) {
		case codec.Data:
			m.AddSegmentReceived()
			m.AddBytesReceived(uint64(len(seg.Payload)))
			r.handleData(st, seg, fileSize)
		case codec.Ack, codec.Init, codec.Invalid:
			// Not meaningful once Phase B has started; drop silently.
		}

		r.armSendAck(st)
		if st.nulls != 0 {
			r.refeedNulls(st, log)
		}
		r.drainPrefix(st, sink, fileSize)
		r.maybeFlushAcks(st, peer, log)
	}
}

// handleData applies one DATA segment to the reassembly buffer: already-
// consumed and duplicate-pending offsets are still acked (the sender may
// not have seen its earlier ACK) but not reinserted. A segment whose
// offset and payload would land past the announced file_size is acked
// (so a confused sender still stops retransmitting it) but never
// buffered, since nothing the receiver could do with it is legitimate.
func (r *Receiver) handleData(st *reassembleState, seg codec.Data, fileSize uint32) {
	st.pendingAcks = append(st.pendingAcks, seg.Sequence)

	end := uint64(seg.Sequence) + uint64(len(seg.Payload))
	if end > uint64(fileSize) {
		return
	}
	if int64(seg.Sequence) >= st.nextExpected {
		if _, dup := st.pending[seg.Sequence]; !dup {
			st.pending[seg.Sequence] = seg.Payload
		}
	}
}

// drainPrefix writes every contiguous buffered chunk starting at
// next_expected, advancing it past each one written. It never writes
// past fileSize, the bound handleData already enforced on admission.
func (r *Receiver) drainPrefix(st *reassembleState, sink store.Sink, fileSize uint32) {
	for {
		payload, ok := st.pending[uint32(st.nextExpected)]
		if !ok {
			return
		}
		delete(st.pending, uint32(st.nextExpected))
		if st.nextExpected+int64(len(payload)) > int64(fileSize) {
			continue
		}
		if len(payload) > 0 {
			_, _ = sink.WriteAt(payload, st.nextExpected)
		}
		st.nextExpected += int64(len(payload))
	}
}

// refeedNulls clears the empty-segment run now that real traffic has
// arrived. The run never reached the termination threshold — the
// len(raw)==0 branch above returns before st.nulls can exceed
// config.ConnectionEndNullsCount — so there is nothing left to carry
// forward, only a count worth logging.
func (r *Receiver) refeedNulls(st *reassembleState, log logging.FieldLogger) {
	log.Debugf("[RECV] %d buffered null segments cleared by incoming traffic", st.nulls)
	st.nulls = 0
}

// armSendAck sets the ACK-batch deadline if it is not already armed.
func (r *Receiver) armSendAck(st *reassembleState) {
	if !st.ackArmed {
		st.ackArmed = true
		st.sendAckAt = time.Now().Add(config.ConsecutivePacketsTimeout)
	}
}

// maybeFlushAcks transmits every queued ACK once the batch deadline has
// passed, then disarms it.
func (r *Receiver) maybeFlushAcks(st *reassembleState, peer net.Addr, log logging.FieldLogger) {
	if !st.ackArmed || time.Now().Before(st.sendAckAt) {
		return
	}
	for _, seq := range st.pendingAcks {
		if err := r.ep.SendTo(codec.EncodeAck(seq), peer); err != nil {
			log.Warnf("[RECV] failed to ACK seq=%d: %v", seq, err)
		}
	}
	st.pendingAcks = nil
	st.ackArmed = false
}
