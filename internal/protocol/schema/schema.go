package schema

import (
	"fmt"

	"github.com/danmuck/snakeyard/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs. Control types travel client->server on the reliable
// connection (JoinAck is the single reply); broadcast types travel on the
// multicast group.
const (
	MsgJoin       uint32 = 1
	MsgMove       uint32 = 2
	MsgJoinAck    uint32 = 3
	MsgSnapshot   uint32 = 4
	MsgScoreBoard uint32 = 5
	MsgEliminated uint32 = 6
)

// Field IDs.
const (
	FieldClientID  uint16 = 1
	FieldName      uint16 = 2
	FieldDirection uint16 = 3

	FieldAccepted  uint16 = 100
	FieldSlot      uint16 = 101
	FieldGroupAddr uint16 = 102

	FieldTick    uint16 = 200
	FieldWidth   uint16 = 201
	FieldHeight  uint16 = 202
	FieldCells   uint16 = 203
	FieldEntries uint16 = 204
	FieldScore   uint16 = 205
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgJoin: {
		{FieldClientID, tlv.TypeU64},
		{FieldName, tlv.TypeString},
	},
	MsgMove: {
		{FieldClientID, tlv.TypeU64},
		{FieldDirection, tlv.TypeU8},
	},
	MsgJoinAck: {
		{FieldClientID, tlv.TypeU64},
		{FieldAccepted, tlv.TypeBool},
	},
	MsgSnapshot: {
		{FieldTick, tlv.TypeU64},
		{FieldWidth, tlv.TypeU16},
		{FieldHeight, tlv.TypeU16},
		{FieldCells, tlv.TypeBytes},
	},
	MsgScoreBoard: {
		{FieldTick, tlv.TypeU64},
		{FieldEntries, tlv.TypeBytes},
	},
	MsgEliminated: {
		{FieldClientID, tlv.TypeU64},
		{FieldTick, tlv.TypeU64},
	},
}

var fixedWidth = map[uint8]int{
	tlv.TypeU8:   1,
	tlv.TypeU16:  2,
	tlv.TypeU32:  4,
	tlv.TypeU64:  8,
	tlv.TypeBool: 1,
}

// Known reports whether messageType has a schema.
func Known(messageType uint32) bool {
	_, ok := requirements[messageType]
	return ok
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Debug().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
		if w, fixed := fixedWidth[req.Type]; fixed && len(f.Value) != w {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Int("len", len(f.Value)).
				Msg("schema.Validate invalid length")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "invalid length"}
		}
	}
	return nil
}
