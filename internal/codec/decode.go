package codec

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/json"
	"io"
)

// maxInflatedSize bounds how much a single compressed frame may expand to.
const maxInflatedSize = 16 << 20

// pongLiteral is the bare-text pong some gateways emit instead of a frame.
var (
	pongLiteral       = []byte("3")
	quotedPongLiteral = []byte(`"3"`)
)

// Decode turns a raw websocket payload into a Frame. It accepts plain JSON
// text, UTF-8 JSON sent on a binary message, zlib-compressed JSON, and
// header-less deflate JSON. It never fails hard; an undecodable payload
// returns ok=false and the caller drops it.
func Decode(raw []byte) (Frame, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false
	}

	if bytes.Equal(trimmed, pongLiteral) || bytes.Equal(trimmed, quotedPongLiteral) {
		return Pong{}, true
	}

	// Many frames arrive uncompressed even on a compressed connection, so
	// the plain parse always runs first. It also covers proxies that
	// mangle the compression header.
	if frame, ok := decodeJSON(trimmed); ok {
		return frame, true
	}

	if sniffZlib(trimmed) {
		if inflated, err := inflateZlib(trimmed); err == nil {
			if frame, ok := decodeJSON(bytes.TrimSpace(inflated)); ok {
				return frame, true
			}
		}
	}

	if inflated, err := inflateRaw(trimmed); err == nil {
		if frame, ok := decodeJSON(bytes.TrimSpace(inflated)); ok {
			return frame, true
		}
	}

	return nil, false
}

type envelope struct {
	S  *int32          `json:"s"`
	Op *int32          `json:"op"`
	D  json.RawMessage `json:"d"`
	SN uint64          `json:"sn"`
}

type helloPayload struct {
	Code      int32  `json:"code"`
	SessionID string `json:"session_id"`
}

type reconnectPayload struct {
	Code int32  `json:"code"`
	Err  string `json:"err"`
}

type resumeAckPayload struct {
	SessionID string `json:"session_id"`
}

func decodeJSON(data []byte) (Frame, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}

	signal := env.S
	if signal == nil {
		// Some senders label the envelope with `op` instead of `s`.
		signal = env.Op
	}
	if signal == nil {
		return nil, false
	}

	switch Signal(*signal) {
	case SignalEvent:
		return Event{SN: env.SN, Data: env.D}, true
	case SignalHello:
		var hello helloPayload
		if len(env.D) > 0 {
			_ = json.Unmarshal(env.D, &hello)
		}
		return Hello{Code: hello.Code, SessionID: hello.SessionID}, true
	case SignalPong:
		return Pong{}, true
	case SignalReconnect:
		var rc reconnectPayload
		if len(env.D) > 0 {
			_ = json.Unmarshal(env.D, &rc)
		}
		return Reconnect{Code: rc.Code, Err: rc.Err}, true
	case SignalResumeAck:
		var ack resumeAckPayload
		if len(env.D) > 0 {
			_ = json.Unmarshal(env.D, &ack)
		}
		return ResumeAck{SessionID: ack.SessionID}, true
	default:
		return Unknown{Raw: env.D}, true
	}
}

// sniffZlib checks the two-byte zlib stream header (0x78 + a valid FLG).
func sniffZlib(data []byte) bool {
	if len(data) < 2 || data[0] != 0x78 {
		return false
	}
	switch data[1] {
	case 0x01, 0x5E, 0x9C, 0xDA:
		return true
	default:
		return false
	}
}

func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(io.LimitReader(reader, maxInflatedSize))
}

func inflateRaw(data []byte) ([]byte, error) {
	reader := flate.NewReader(bytes.NewReader(data))
	defer reader.Close()
	return io.ReadAll(io.LimitReader(reader, maxInflatedSize))
}
