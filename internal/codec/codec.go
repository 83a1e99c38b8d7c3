// Package codec implements the pure wire format of the three segment
// kinds (INIT, DATA, ACK): no I/O, no retained state, just encode/decode
// and the CRC-32 check over DATA payloads.
package codec

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"path/filepath"

	"github.com/phuwit/urft/internal/config"
)

// kind is the 1-byte type discriminator at the head of every segment.
type kind byte

const (
	kindInit kind = 1
	kindData kind = 2
	kindAck  kind = 3
)

// Segment is the decoded form of one datagram: an Init, Data, Ack, or
// Invalid value. Callers type-switch on the concrete type.
type Segment interface {
	segment()
}

// Init announces the file about to be transferred.
type Init struct {
	FileSize uint32
	FileName string
}

func (Init) segment() {}

// Data carries one chunk of file payload, addressed by byte offset.
type Data struct {
	Sequence uint32
	Payload  []byte
}

func (Data) segment() {}

// Ack acknowledges a single sequence number (a file offset, or
// config.InitSequence for the INIT segment).
type Ack struct {
	Sequence uint32
}

func (Ack) segment() {}

// Invalid is returned for anything the decoder could not accept: an
// unknown type byte, a truncated header, or (for DATA) a CRC mismatch.
// The decoder never panics on malformed input; Invalid carries the reason
// purely for logging.
type Invalid struct {
	Reason string
}

func (Invalid) segment() {}

// EncodeInit serializes an INIT segment. fileName is reduced to its
// basename before encoding, so a directory-bearing path never reaches the
// wire in the first place.
func EncodeInit(fileSize uint32, fileName string) []byte {
	name := filepath.Base(fileName)
	b := make([]byte, 5+len(name))
	b[0] = byte(kindInit)
	binary.BigEndian.PutUint32(b[1:5], fileSize)
	copy(b[5:], name)
	return b
}

// EncodeData serializes a DATA segment, computing the CRC-32 (IEEE) over
// payload and embedding it in the header.
func EncodeData(sequence uint32, payload []byte) []byte {
	b := make([]byte, config.HeaderData+len(payload))
	b[0] = byte(kindData)
	binary.BigEndian.PutUint32(b[1:5], sequence)
	binary.BigEndian.PutUint32(b[5:9], crc32.ChecksumIEEE(payload))
	copy(b[config.HeaderData:], payload)
	return b
}

// EncodeAck serializes an ACK segment.
func EncodeAck(sequence uint32) []byte {
	b := make([]byte, 5)
	b[0] = byte(kindAck)
	binary.BigEndian.PutUint32(b[1:5], sequence)
	return b
}

// Decode dispatches on the first byte of b and returns the matching
// Segment, or Invalid if b is truncated, carries an unrecognized type
// byte, or (for DATA) fails its CRC check.
func Decode(b []byte) Segment {
	if len(b) < 1 {
		return Invalid{Reason: "empty datagram"}
	}
	switch kind(b[0]) {
	case kindInit:
		return decodeInit(b)
	case kindData:
		return decodeData(b)
	case kindAck:
		return decodeAck(b)
	default:
		return Invalid{Reason: "unknown type byte"}
	}
}

// fallbackFileName is substituted whenever a decoded INIT name reduces to
// something filepath.Join could still escape the output directory with:
// filepath.Base leaves "." and ".." unchanged instead of sanitizing them.
const fallbackFileName = "received_file"

func decodeInit(b []byte) Segment {
	if len(b) < 5 {
		return Invalid{Reason: "truncated INIT header"}
	}
	fileSize := binary.BigEndian.Uint32(b[1:5])
	name := filepath.Base(string(b[5:]))
	if name == "." || name == ".." {
		name = fallbackFileName
	}
	return Init{FileSize: fileSize, FileName: name}
}

func decodeData(b []byte) Segment {
	if len(b) < config.HeaderData {
		return Invalid{Reason: "truncated DATA header"}
	}
	sequence := binary.BigEndian.Uint32(b[1:5])
	wantCRC := binary.BigEndian.Uint32(b[5:9])
	payload := b[config.HeaderData:]
	if got := crc32.ChecksumIEEE(payload); got != wantCRC {
		return Invalid{Reason: "CRC mismatch"}
	}
	return Data{Sequence: sequence, Payload: append([]byte(nil), payload...)}
}

func decodeAck(b []byte) Segment {
	if len(b) < 5 {
		return Invalid{Reason: "truncated ACK header"}
	}
	return Ack{Sequence: binary.BigEndian.Uint32(b[1:5])}
}

// ErrPayloadTooLarge names the config.MaxPayload bound on DATA payloads.
// The codec never fails to encode and does not return it, and no caller in
// this module returns it either: the sender reads at most MaxPayload bytes
// per segment, so the bound holds without a check.
var ErrPayloadTooLarge = errors.New("payload exceeds MaxPayload")
