package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/snakeyard/internal/protocol/frame"
	"github.com/danmuck/snakeyard/internal/protocol/schema"
	"github.com/danmuck/snakeyard/internal/protocol/tlv"
	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Payloads below this size are never compressed.
const compressThreshold = 256

var (
	ErrInvalidSnapshot  = errors.New("session: invalid snapshot")
	ErrInvalidBroadcast = errors.New("session: invalid broadcast")
	ErrTrailingBytes    = errors.New("session: trailing bytes after datagram frame")
)

// Cell is one rendered grid cell. Color is the cell background, Ink the glyph
// foreground; both are 24-bit RGB.
type Cell struct {
	_msgpack struct{} `msgpack:",as_array"`
	Kind     uint8
	Color    int32
	Ink      int32
	Glyph    string
}

// BoardEntry is one opaque score board line.
type BoardEntry struct {
	_msgpack struct{} `msgpack:",as_array"`
	Color    int32
	Text     string
}

// Broadcast is implemented by every message sent on the multicast group.
type Broadcast interface {
	MessageType() uint32
}

// Snapshot is the complete grid after a tick in row-major order.
type Snapshot struct {
	Tick   uint64
	Width  uint16
	Height uint16
	Cells  []Cell
}

func (Snapshot) MessageType() uint32 { return schema.MsgSnapshot }

func (s Snapshot) Validate() error {
	if s.Width == 0 || s.Height == 0 {
		return fmt.Errorf("%w: empty grid", ErrInvalidSnapshot)
	}
	if len(s.Cells) != int(s.Width)*int(s.Height) {
		return fmt.Errorf("%w: %d cells for %dx%d", ErrInvalidSnapshot, len(s.Cells), s.Width, s.Height)
	}
	return nil
}

// At returns the cell at (row, col).
func (s Snapshot) At(row, col int) Cell {
	return s.Cells[row*int(s.Width)+col]
}

type ScoreBoard struct {
	Tick    uint64
	Entries []BoardEntry
}

func (ScoreBoard) MessageType() uint32 { return schema.MsgScoreBoard }

// Eliminated is emitted once per failed snake, keyed by the client id that
// owned it so the notice survives slot reuse.
type Eliminated struct {
	ClientID uint64
	Tick     uint64
	Score    uint64
}

func (Eliminated) MessageType() uint32 { return schema.MsgEliminated }

type EncodeOptions struct {
	Compress bool
}

// EncodeBroadcast encodes b as one datagram-sized frame.
func EncodeBroadcast(messageID uint64, b Broadcast, opts EncodeOptions) ([]byte, error) {
	var fields []tlv.Field
	switch m := b.(type) {
	case Snapshot:
		if err := m.Validate(); err != nil {
			return nil, err
		}
		cells, err := msgpack.Marshal(m.Cells)
		if err != nil {
			return nil, fmt.Errorf("session: encode cells: %w", err)
		}
		fields = []tlv.Field{
			tlv.U64(schema.FieldTick, m.Tick),
			tlv.U16(schema.FieldWidth, m.Width),
			tlv.U16(schema.FieldHeight, m.Height),
			tlv.Bytes(schema.FieldCells, cells),
		}
	case ScoreBoard:
		entries, err := msgpack.Marshal(m.Entries)
		if err != nil {
			return nil, fmt.Errorf("session: encode entries: %w", err)
		}
		fields = []tlv.Field{
			tlv.U64(schema.FieldTick, m.Tick),
			tlv.Bytes(schema.FieldEntries, entries),
		}
	case Eliminated:
		if m.ClientID == 0 {
			return nil, fmt.Errorf("%w: eliminated missing client_id", ErrInvalidBroadcast)
		}
		fields = []tlv.Field{
			tlv.U64(schema.FieldClientID, m.ClientID),
			tlv.U64(schema.FieldTick, m.Tick),
			tlv.U64(schema.FieldScore, m.Score),
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedType, b)
	}
	if err := schema.Validate(b.MessageType(), fields); err != nil {
		return nil, err
	}

	payload := tlv.EncodeFields(fields)
	var flags uint32
	if opts.Compress && len(payload) >= compressThreshold {
		packed, err := compress(payload)
		if err != nil {
			return nil, err
		}
		if len(packed) < len(payload) {
			payload = packed
			flags |= frame.FlagCompressed
		}
	}
	return frame.Encode(frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: b.MessageType(),
			Flags:       flags,
		},
		Payload: payload,
	}, frame.DatagramLimits())
}

// DecodeDatagram decodes one datagram. A datagram carries exactly one frame.
func DecodeDatagram(b []byte) (frame.Header, Broadcast, error) {
	f, n, err := frame.Decode(b, frame.DatagramLimits())
	if err != nil {
		return frame.Header{}, nil, err
	}
	if n != len(b) {
		return frame.Header{}, nil, ErrTrailingBytes
	}
	msg, err := DecodeBroadcast(f)
	if err != nil {
		return frame.Header{}, nil, err
	}
	return f.Header, msg, nil
}

func DecodeBroadcast(f frame.Frame) (Broadcast, error) {
	payload := f.Payload
	if f.Header.Flags&frame.FlagCompressed != 0 {
		raw, err := decompress(payload, frame.DatagramLimits().MaxPayloadBytes)
		if err != nil {
			return nil, err
		}
		payload = raw
	}
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(f.Header.MessageType, fields); err != nil {
		return nil, err
	}

	switch f.Header.MessageType {
	case schema.MsgSnapshot:
		s := Snapshot{
			Tick:   getRequiredU64(fields, schema.FieldTick),
			Width:  getRequiredU16(fields, schema.FieldWidth),
			Height: getRequiredU16(fields, schema.FieldHeight),
		}
		raw, _ := tlv.GetField(fields, schema.FieldCells)
		if err := msgpack.Unmarshal(raw.Value, &s.Cells); err != nil {
			return nil, fmt.Errorf("%w: cells: %v", ErrInvalidSnapshot, err)
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return s, nil
	case schema.MsgScoreBoard:
		b := ScoreBoard{Tick: getRequiredU64(fields, schema.FieldTick)}
		raw, _ := tlv.GetField(fields, schema.FieldEntries)
		if err := msgpack.Unmarshal(raw.Value, &b.Entries); err != nil {
			return nil, fmt.Errorf("%w: entries: %v", ErrInvalidBroadcast, err)
		}
		return b, nil
	case schema.MsgEliminated:
		e := Eliminated{
			ClientID: getRequiredU64(fields, schema.FieldClientID),
			Tick:     getRequiredU64(fields, schema.FieldTick),
		}
		if scoreField, ok := tlv.GetField(fields, schema.FieldScore); ok {
			score, err := scoreField.U64()
			if err != nil {
				return nil, err
			}
			e.Score = score
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedType, f.Header.MessageType)
	}
}

func compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		return nil, fmt.Errorf("session: lz4 write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("session: lz4 close: %w", err)
	}
	return buf.Bytes(), nil
}

// decompress refuses to inflate past max bytes.
func decompress(src []byte, max uint64) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(src))
	out, err := io.ReadAll(io.LimitReader(zr, int64(max)+1))
	if err != nil {
		return nil, fmt.Errorf("session: lz4 read: %w", err)
	}
	if uint64(len(out)) > max {
		return nil, frame.ErrPayloadTooLarge
	}
	return out, nil
}
