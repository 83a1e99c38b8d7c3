// Package sender implements the sending endpoint of the reliable file
// transfer protocol: it emits INIT, emits DATA covering the whole file,
// and retransmits anything unacknowledged past its deadline until every
// segment has been ACKed.
package sender

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/phuwit/urft/internal/codec"
	"github.com/phuwit/urft/internal/config"
	"github.com/phuwit/urft/internal/logging"
	"github.com/phuwit/urft/internal/metrics"
	"github.com/phuwit/urft/internal/store"
	"github.com/phuwit/urft/internal/transport"
)

// Sentinel errors a caller can match with errors.Is.
var (
	// ErrConnectionRefused surfaces an administrative refusal from the
	// peer (e.g. ICMP port-unreachable surfaced as a socket error).
	ErrConnectionRefused = errors.New("sender: connection refused")
	// ErrFileTooLarge is returned when the source file exceeds
	// config.MaxFileSize, the wire format's representable range.
	ErrFileTooLarge = errors.New("sender: file exceeds maximum representable size")
)

// Sender transmits one file per call to SendFile. It holds no state
// across calls.
type Sender struct {
	ep          transport.Endpoint
	lossTimeout time.Duration
}

// New builds a Sender that transmits over ep, retransmitting any segment
// unacknowledged past lossTimeout. ep is closed when SendFile returns.
func New(ep transport.Endpoint, lossTimeout time.Duration) *Sender {
	if lossTimeout <= 0 {
		lossTimeout = config.LossTimeout
	}
	return &Sender{ep: ep, lossTimeout: lossTimeout}
}

// SendFile transmits the file at path, returning once every byte has been
// acknowledged or a terminal failure occurs. ctx cancellation interrupts
// the one suspension point (the timed receive) and returns ctx.Err().
// A receive timeout is not a terminal failure: the sender keeps
// retransmitting due segments until they are acknowledged or ctx ends.
func (s *Sender) SendFile(ctx context.Context, path string) error {
	defer s.ep.Close()

	src, err := store.OpenSource(path)
	if err != nil {
		return fmt.Errorf("sender: open %s: %w", path, err)
	}
	defer src.Close()

	fileSize := src.Size()
	if fileSize < 0 || uint64(fileSize) > uint64(config.MaxFileSize) {
		return ErrFileTooLarge
	}

	name := filepath.Base(path)
	log := logging.Sender.WithField("file", name)

	inflight := newInflightSet()
	m := metrics.NewTransfer()
	defer func() {
		m.Finish()
		log.Infof("[SEND] %d segments sent (%d retransmitted), %.0f B/s average",
			m.SegmentsSent, m.Retransmissions, m.AverageSpeed())
	}()

	// Phase 1: initialization.
	if err := s.ep.Send(codec.EncodeInit(uint32(fileSize), name)); err != nil {
		return fmt.Errorf("sender: send INIT: %w", err)
	}
	inflight.add(config.InitSequence, time.Now().Add(s.lossTimeout))
	m.AddSegmentSent()
	log.Infof("[SEND] INIT size=%d", fileSize)

	// Phase 2: bulk transmission, MaxPayload-byte chunks addressed by
	// byte offset.
	buf := make([]byte, config.MaxPayload)
	for offset := int64(0); offset < fileSize; {
		n, err := src.ReadAt(buf, offset)
		if n == 0 && err != nil {
			return fmt.Errorf("sender: read at %d: %w", offset, err)
		}
		payload := append([]byte(nil), buf[:n]...)
		if err := s.ep.Send(codec.EncodeData(uint32(offset), payload)); err != nil {
			return fmt.Errorf("sender: send DATA seq=%d: %w", offset, err)
		}
		inflight.add(uint32(offset), time.Now().Add(s.lossTimeout))
		m.AddSegmentSent()
		m.AddBytesSent(uint64(n))
		offset += int64(n)
	}
	log.Infof("[SEND] bulk transmission complete, %d segments inflight", inflight.len())

	// Phase 3: retransmit-and-drain.
	for inflight.len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		if rec, ok := inflight.earliest(); ok && !rec.deadline.After(time.Now()) {
			if err := s.retransmit(src, inflight, rec, fileSize, name, log, m); err != nil {
				return err
			}
		}

		b, _, err := s.ep.Receive(s.lossTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrConnectionRefused, err)
		}

		if ack, ok := codec.Decode(b).(codec.Ack); ok {
			m.AddSegmentReceived()
			if inflight.ack(ack.Sequence) {
				log.Debugf("[SEND] ACK seq=%d", ack.Sequence)
			}
		}
	}

	log.Infof("[SEND] transfer complete")
	return nil
}

// retransmit handles one due inflight record: re-sends INIT or the DATA
// chunk at rec.sequence, or drops the record without resending if
// rec.sequence has fallen outside the file (guards against a spurious
// entry outliving the file it referred to).
func (s *Sender) retransmit(src store.Source, inflight *inflightSet, rec *inflightRecord, fileSize int64, name string, log logging.FieldLogger, m *metrics.Transfer) error {
	if rec.sequence == config.InitSequence {
		inflight.dropEarliest()
		if err := s.ep.Send(codec.EncodeInit(uint32(fileSize), name)); err != nil {
			return fmt.Errorf("sender: resend INIT: %w", err)
		}
		inflight.add(config.InitSequence, time.Now().Add(s.lossTimeout))
		m.AddSegmentSent()
		m.AddRetransmission()
		log.Debugf("[SEND] retransmit INIT")
		return nil
	}

	if int64(rec.sequence) >= fileSize {
		inflight.dropEarliest()
		return nil
	}

	inflight.dropEarliest()
	buf := make([]byte, config.MaxPayload)
	n, err := src.ReadAt(buf, int64(rec.sequence))
	if n == 0 && err != nil {
		return fmt.Errorf("sender: retransmit read at %d: %w", rec.sequence, err)
	}
	payload := append([]byte(nil), buf[:n]...)
	if err := s.ep.Send(codec.EncodeData(rec.sequence, payload)); err != nil {
		return fmt.Errorf("sender: retransmit DATA seq=%d: %w", rec.sequence, err)
	}
	inflight.add(rec.sequence, time.Now().Add(s.lossTimeout))
	m.AddSegmentSent()
	m.AddBytesSent(uint64(n))
	m.AddRetransmission()
	log.Debugf("[SEND] retransmit DATA seq=%d", rec.sequence)
	return nil
}
