package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	HeaderLen uint16 = 32

	Magic   uint32 = 0x534E4B59 // "SNKY"
	Version uint16 = 1

	FlagCompressed uint32 = 0x01
	FlagIsResponse uint32 = 0x02
)

var (
	ErrIncomplete      = errors.New("frame: incomplete")
	ErrInvalidMagic    = errors.New("frame: invalid magic")
	ErrUnsupported     = errors.New("frame: unsupported version")
	ErrInvalidHeader   = errors.New("frame: invalid header_len")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrBufferOverflow  = errors.New("frame: buffer capacity exceeded")
)

// Header is the fixed wire header.
type Header struct {
	Magic       uint32
	Version     uint16
	HeaderLen   uint16
	MessageID   uint64
	MessageType uint32
	Flags       uint32
	PayloadLen  uint64
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains decode/encode memory use. MaxBufferBytes bounds the
// accumulation buffer of one connection or the size of one datagram.
type Limits struct {
	MaxPayloadBytes uint64
	MaxBufferBytes  int
}

// ControlLimits bounds the reliable per-client control connection.
func ControlLimits() Limits {
	return Limits{
		MaxPayloadBytes: 4096 - uint64(HeaderLen),
		MaxBufferBytes:  4096,
	}
}

// DatagramLimits bounds one broadcast datagram.
func DatagramLimits() Limits {
	return Limits{
		MaxPayloadBytes: 65507 - uint64(HeaderLen),
		MaxBufferBytes:  65507,
	}
}

// Encode returns the wire bytes for f. Magic, version and lengths are filled in.
func Encode(f Frame, limits Limits) ([]byte, error) {
	payloadLen := uint64(len(f.Payload))
	if payloadLen > limits.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, payloadLen, limits.MaxPayloadBytes)
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.HeaderLen = HeaderLen
	h.PayloadLen = payloadLen

	out := make([]byte, int(HeaderLen)+len(f.Payload))
	putHeader(out[:HeaderLen], h)
	copy(out[HeaderLen:], f.Payload)
	return out, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	b, err := Encode(f, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Decode attempts to parse one frame from the front of buf and reports how
// many bytes it consumed. ErrIncomplete means buf is a valid prefix of a frame
// and more bytes are needed; any other error means the stream is corrupt.
func Decode(buf []byte, limits Limits) (Frame, int, error) {
	if len(buf) < int(HeaderLen) {
		if err := checkPrefix(buf); err != nil {
			return Frame{}, 0, err
		}
		return Frame{}, 0, ErrIncomplete
	}
	h, err := DecodeHeader(buf[:HeaderLen])
	if err != nil {
		return Frame{}, 0, err
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, 0, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, h.PayloadLen, limits.MaxPayloadBytes)
	}
	total := int(HeaderLen) + int(h.PayloadLen)
	if len(buf) < total {
		return Frame{}, 0, ErrIncomplete
	}
	payload := make([]byte, h.PayloadLen)
	copy(payload, buf[HeaderLen:total])
	return Frame{Header: h, Payload: payload}, total, nil
}

// DecodeHeader parses and validates the fixed header.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(HeaderLen) {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	h := Header{
		Magic:       binary.BigEndian.Uint32(b[0:4]),
		Version:     binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:   binary.BigEndian.Uint16(b[6:8]),
		MessageID:   binary.BigEndian.Uint64(b[8:16]),
		MessageType: binary.BigEndian.Uint32(b[16:20]),
		Flags:       binary.BigEndian.Uint32(b[20:24]),
		PayloadLen:  binary.BigEndian.Uint64(b[24:32]),
	}
	if h.Magic != Magic {
		return Header{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Header{}, ErrUnsupported
	}
	if h.HeaderLen != HeaderLen {
		return Header{}, ErrInvalidHeader
	}
	return h, nil
}

// checkPrefix rejects garbage early instead of waiting for a full header.
func checkPrefix(buf []byte) error {
	var magic [4]byte
	binary.BigEndian.PutUint32(magic[:], Magic)
	n := len(buf)
	if n > len(magic) {
		n = len(magic)
	}
	for i := 0; i < n; i++ {
		if buf[i] != magic[i] {
			return ErrInvalidMagic
		}
	}
	return nil
}

func putHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint64(buf[8:16], h.MessageID)
	binary.BigEndian.PutUint32(buf[16:20], h.MessageType)
	binary.BigEndian.PutUint32(buf[20:24], h.Flags)
	binary.BigEndian.PutUint64(buf[24:32], h.PayloadLen)
}
