package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks frames that are not a JSON envelope with an object payload.
	ErrMalformed = errors.New("malformed packet")
	// ErrUnknownPacket marks envelopes whose id is not valid for the channel.
	ErrUnknownPacket = errors.New("unknown packet id")
	// ErrInvalidData marks payloads that do not fit the packet's shape.
	ErrInvalidData = errors.New("invalid packet data")
)

// Packet is any control message.
type Packet interface {
	PacketID() string
}

type envelope struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps p in its envelope.
func Encode(p Packet) ([]byte, error) {
	if p == nil {
		return nil, errors.New("encode: nil packet")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", p.PacketID(), err)
	}
	if bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	return json.Marshal(envelope{ID: p.PacketID(), Data: data})
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.ID == "" {
		return envelope{}, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return envelope{}, fmt.Errorf("%w: data of %q must be an object", ErrMalformed, env.ID)
	}
	env.Data = trimmed
	return env, nil
}

// decodeInto looks up the constructor for the envelope id and fills it.
func decodeInto[T Packet](raw []byte, registry map[string]func() T) (T, error) {
	var zero T
	env, err := decodeEnvelope(raw)
	if err != nil {
		return zero, err
	}
	build, ok := registry[env.ID]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrUnknownPacket, env.ID)
	}
	packet := build()
	if err := json.Unmarshal(env.Data, packet); err != nil {
		return zero, fmt.Errorf("%w: %s: %v", ErrInvalidData, env.ID, err)
	}
	return packet, nil
}
