package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrTypeMismatch is returned when a payload is decoded as a kind other
	// than the one it was sent as. Peers sending it are protocol violators.
	ErrTypeMismatch = errors.New("message type mismatch")
	// ErrUnknownKind is returned for envelopes whose kind is not in the catalog.
	ErrUnknownKind = errors.New("unknown message kind")
)

// Envelope wraps every message on the reliable channel.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// datagram is the msgpack framing used on the best-effort channel.
type datagram struct {
	Type    Kind               `msgpack:"t"`
	Payload msgpack.RawMessage `msgpack:"p"`
}

// Codec turns messages into bytes and back.
type Codec interface {
	Marshal(m Message) ([]byte, error)
	Unmarshal(data []byte) (Message, error)
}

// JSON is the codec used on the websocket channel.
var JSON Codec = jsonCodec{}

// Msgpack is the codec used for UDP datagrams.
var Msgpack Codec = msgpackCodec{}

type jsonCodec struct{}

func (jsonCodec) Marshal(m Message) ([]byte, error) {
	return Encode(m)
}

func (jsonCodec) Unmarshal(data []byte) (Message, error) {
	return Decode(data)
}

type msgpackCodec struct{}

func (msgpackCodec) Marshal(m Message) ([]byte, error) {
	raw, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", m.Kind(), err)
	}
	return msgpack.Marshal(datagram{Type: m.Kind(), Payload: raw})
}

func (msgpackCodec) Unmarshal(data []byte) (Message, error) {
	var d datagram
	if err := msgpack.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode datagram: %w", err)
	}
	return decodeKind(d.Type, d.Payload, msgpack.Unmarshal)
}

// Encode builds a JSON envelope for m.
func Encode(m Message) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", m.Kind(), err)
	}
	data, err := json.Marshal(Envelope{Type: m.Kind(), Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", m.Kind(), err)
	}
	return data, nil
}

// Decode parses a JSON envelope into the concrete message it carries.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return decodeKind(env.Type, env.Payload, json.Unmarshal)
}

// DecodeAs parses a JSON envelope that must carry a T.
func DecodeAs[T Message](data []byte) (T, error) {
	var out T
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return out, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type != out.Kind() {
		return out, fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, out.Kind(), env.Type)
	}
	if err := unmarshalPayload(env.Payload, &out, json.Unmarshal); err != nil {
		return out, err
	}
	return out, nil
}

// As narrows an already decoded message to T.
func As[T Message](m Message) (T, error) {
	out, ok := m.(T)
	if !ok {
		var zero T
		kind := Kind("<nil>")
		if m != nil {
			kind = m.Kind()
		}
		return zero, fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, zero.Kind(), kind)
	}
	return out, nil
}

type unmarshalFunc func([]byte, any) error

func unmarshalPayload(raw []byte, v any, unmarshal unmarshalFunc) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func decodeAs[T Message](raw []byte, unmarshal unmarshalFunc) (Message, error) {
	var m T
	if err := unmarshalPayload(raw, &m, unmarshal); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeKind(kind Kind, raw []byte, unmarshal unmarshalFunc) (Message, error) {
	switch kind {
	case KindInfoRequest:
		return decodeAs[InfoRequest](raw, unmarshal)
	case KindConnectionRequest:
		return decodeAs[ConnectionRequest](raw, unmarshal)
	case KindPickedTeam:
		return decodeAs[PickedTeam](raw, unmarshal)
	case KindClientChat:
		return decodeAs[ClientChat](raw, unmarshal)
	case KindInput:
		return decodeAs[Input](raw, unmarshal)
	case KindResponse:
		return decodeAs[Response](raw, unmarshal)
	case KindSummary:
		return decodeAs[Summary](raw, unmarshal)
	case KindDetailedSummary:
		return decodeAs[DetailedSummary](raw, unmarshal)
	case KindGameCountdown:
		return decodeAs[GameCountdown](raw, unmarshal)
	case KindServerChat:
		return decodeAs[ServerChat](raw, unmarshal)
	case KindPlayerPositions:
		return decodeAs[PlayerPositions](raw, unmarshal)
	case KindProjectilePositions:
		return decodeAs[ProjectilePositions](raw, unmarshal)
	case KindFlagPositions:
		return decodeAs[FlagPositions](raw, unmarshal)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
