package session

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/danmuck/snakeyard/internal/protocol/frame"
	"github.com/danmuck/snakeyard/internal/protocol/schema"
	"github.com/danmuck/snakeyard/internal/protocol/tlv"
	"github.com/danmuck/snakeyard/internal/yard"
)

const MaxNameLen = 32

var (
	ErrInvalidJoin    = errors.New("session: invalid join")
	ErrInvalidMove    = errors.New("session: invalid move")
	ErrInvalidJoinAck = errors.New("session: invalid join ack")
	ErrUnexpectedType = errors.New("session: unexpected message type")
)

// Join asks the arena for a slot on behalf of a durable client id.
type Join struct {
	ClientID uint64
	Name     string
}

func (j Join) Validate() error {
	if j.ClientID == 0 {
		return fmt.Errorf("%w: missing client_id", ErrInvalidJoin)
	}
	if len(j.Name) > MaxNameLen {
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidJoin, MaxNameLen)
	}
	if !utf8.ValidString(j.Name) {
		return fmt.Errorf("%w: name is not utf-8", ErrInvalidJoin)
	}
	return nil
}

// Move steers the snake bound to ClientID.
type Move struct {
	ClientID  uint64
	Direction yard.Direction
}

func (m Move) Validate() error {
	if m.ClientID == 0 {
		return fmt.Errorf("%w: missing client_id", ErrInvalidMove)
	}
	if !m.Direction.Valid() {
		return fmt.Errorf("%w: direction %d", ErrInvalidMove, m.Direction)
	}
	return nil
}

// JoinAck is the single reply written on a control connection. GroupAddr is
// the broadcast group the client should subscribe to; Slot is -1 when the
// join was rejected.
type JoinAck struct {
	ClientID  uint64
	Accepted  bool
	Slot      int
	GroupAddr string
}

func (a JoinAck) Validate() error {
	if a.ClientID == 0 {
		return fmt.Errorf("%w: missing client_id", ErrInvalidJoinAck)
	}
	if a.Accepted && (a.Slot < 0 || a.Slot >= yard.MaxPlayers) {
		return fmt.Errorf("%w: slot %d out of range", ErrInvalidJoinAck, a.Slot)
	}
	return nil
}

func EncodeJoinFrame(messageID uint64, j Join) ([]byte, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.U64(schema.FieldClientID, j.ClientID),
		tlv.String(schema.FieldName, j.Name),
	}
	return encodeControl(messageID, schema.MsgJoin, 0, fields)
}

func DecodeJoinFrame(f frame.Frame) (Join, error) {
	fields, err := decodeFields(f, schema.MsgJoin)
	if err != nil {
		return Join{}, err
	}
	j := Join{
		ClientID: getRequiredU64(fields, schema.FieldClientID),
		Name:     getRequiredString(fields, schema.FieldName),
	}
	if err := j.Validate(); err != nil {
		return Join{}, err
	}
	return j, nil
}

func EncodeMoveFrame(messageID uint64, m Move) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.U64(schema.FieldClientID, m.ClientID),
		tlv.U8(schema.FieldDirection, uint8(m.Direction)),
	}
	return encodeControl(messageID, schema.MsgMove, 0, fields)
}

func DecodeMoveFrame(f frame.Frame) (Move, error) {
	fields, err := decodeFields(f, schema.MsgMove)
	if err != nil {
		return Move{}, err
	}
	dirField, _ := tlv.GetField(fields, schema.FieldDirection)
	dir, err := dirField.U8()
	if err != nil {
		return Move{}, err
	}
	m := Move{
		ClientID:  getRequiredU64(fields, schema.FieldClientID),
		Direction: yard.Direction(dir),
	}
	if err := m.Validate(); err != nil {
		return Move{}, err
	}
	return m, nil
}

func EncodeJoinAckFrame(messageID uint64, a JoinAck) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	fields := []tlv.Field{
		tlv.U64(schema.FieldClientID, a.ClientID),
		tlv.Bool(schema.FieldAccepted, a.Accepted),
	}
	if a.Accepted {
		fields = append(fields, tlv.U8(schema.FieldSlot, uint8(a.Slot)))
	}
	if a.GroupAddr != "" {
		fields = append(fields, tlv.String(schema.FieldGroupAddr, a.GroupAddr))
	}
	return encodeControl(messageID, schema.MsgJoinAck, frame.FlagIsResponse, fields)
}

func DecodeJoinAckFrame(f frame.Frame) (JoinAck, error) {
	fields, err := decodeFields(f, schema.MsgJoinAck)
	if err != nil {
		return JoinAck{}, err
	}
	accField, _ := tlv.GetField(fields, schema.FieldAccepted)
	accepted, err := accField.Bool()
	if err != nil {
		return JoinAck{}, err
	}
	a := JoinAck{
		ClientID: getRequiredU64(fields, schema.FieldClientID),
		Accepted: accepted,
		Slot:     -1,
	}
	if slotField, ok := tlv.GetField(fields, schema.FieldSlot); ok {
		slot, err := slotField.U8()
		if err != nil {
			return JoinAck{}, err
		}
		a.Slot = int(slot)
	}
	if groupField, ok := tlv.GetField(fields, schema.FieldGroupAddr); ok {
		group, err := groupField.Str()
		if err != nil {
			return JoinAck{}, err
		}
		a.GroupAddr = group
	}
	if err := a.Validate(); err != nil {
		return JoinAck{}, err
	}
	return a, nil
}

func encodeControl(messageID uint64, messageType uint32, flags uint32, fields []tlv.Field) ([]byte, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.ControlLimits())
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFields(f frame.Frame, want uint32) ([]tlv.Field, error) {
	if f.Header.MessageType != want {
		return nil, fmt.Errorf("%w: got %d want %d", ErrUnexpectedType, f.Header.MessageType, want)
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(want, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// getRequired* read fields schema.Validate already proved present and typed.
func getRequiredString(fields []tlv.Field, id uint16) string {
	f, _ := tlv.GetField(fields, id)
	return string(f.Value)
}

func getRequiredU64(fields []tlv.Field, id uint16) uint64 {
	f, _ := tlv.GetField(fields, id)
	v, _ := f.U64()
	return v
}

func getRequiredU16(fields []tlv.Field, id uint16) uint16 {
	f, _ := tlv.GetField(fields, id)
	v, _ := f.U16()
	return v
}
