package signal

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns envelopes into websocket frames. Hub and clients must agree on one.
type Codec interface {
	Name() string
	FrameType() int
	Encode(Envelope) ([]byte, error)
	Decode([]byte, *Envelope) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return "json" }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (jsonCodec) Decode(data []byte, env *Envelope) error {
	return json.Unmarshal(data, env)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return "msgpack" }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (msgpackCodec) Encode(env Envelope) ([]byte, error) {
	return msgpack.Marshal(&env)
}

func (msgpackCodec) Decode(data []byte, env *Envelope) error {
	return msgpack.Unmarshal(data, env)
}

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// CodecByName resolves the signaling.codec config value.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	default:
		return nil, fmt.Errorf("unknown signaling codec %q", name)
	}
}
