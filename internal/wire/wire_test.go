package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"testing"
	"testing/iotest"
)

func TestRoundTrip(t *testing.T) {
	cases := []any{
		map[string]any{"command": "ping", "params": map[string]any{}},
		map[string]any{"nested": map[string]any{"a": []any{1.0, 2.0, 3.0}}, "s": "héllo ☀"},
		[]any{"a", 1.5, true, nil},
		"bare string",
		42.0,
	}

	for _, in := range cases {
		msg, err := Encode(in)
		if err != nil {
			t.Fatalf("Encode(%v) error = %v", in, err)
		}

		raw, err := ReadMessage(bytes.NewReader(msg))
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}

		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("unmarshaling body: %v", err)
		}
		if !reflect.DeepEqual(out, in) {
			t.Errorf("round trip = %#v, want %#v", out, in)
		}
	}
}

func TestReadMessageOneByteAtATime(t *testing.T) {
	in := map[string]any{"command": "get_scene_info", "params": map[string]any{"detail": "full"}}
	msg, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// A slow socket delivers one byte per read; the decoder must loop.
	raw, err := ReadMessage(iotest.OneByteReader(bytes.NewReader(msg)))
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshaling body: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("slow read = %#v, want %#v", out, in)
	}
}

func TestReadMessageShortPrefix(t *testing.T) {
	for _, data := range [][]byte{nil, {0x00}, {0x00, 0x10}, {0x00, 0x00, 0x01}} {
		_, err := ReadMessage(bytes.NewReader(data))
		if !errors.Is(err, ErrFraming) {
			t.Errorf("ReadMessage(% x) error = %v, want ErrFraming", data, err)
		}
	}
}

func TestReadMessageTruncatedBody(t *testing.T) {
	msg, err := Encode(map[string]any{"command": "ping"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	_, err = ReadMessage(bytes.NewReader(msg[:len(msg)-3]))
	if !errors.Is(err, ErrFraming) {
		t.Errorf("ReadMessage(truncated) error = %v, want ErrFraming", err)
	}
}

func TestReadMessageInvalidJSON(t *testing.T) {
	body := []byte(`{"command": `)
	msg := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(msg[:4], uint32(len(body)))
	copy(msg[4:], body)

	_, err := ReadMessage(bytes.NewReader(msg))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("ReadMessage(invalid json) error = %v, want ErrMalformedPayload", err)
	}
}

func TestReadMessageLengthOverMaximum(t *testing.T) {
	var msg [4]byte
	binary.BigEndian.PutUint32(msg[:], MaxBodySize+1)

	_, err := ReadMessage(bytes.NewReader(msg[:]))
	if !errors.Is(err, ErrFraming) {
		t.Errorf("ReadMessage(oversized length) error = %v, want ErrFraming", err)
	}
}

func TestReadMessageZeroLengthBody(t *testing.T) {
	raw, err := ReadMessage(bytes.NewReader([]byte{0, 0, 0, 0}))
	if err != nil {
		t.Fatalf("ReadMessage(empty body) error = %v", err)
	}
	if string(raw) != "null" {
		t.Errorf("empty body decoded to %q, want null", raw)
	}
}

func TestReadRequestRejectsEmptyBody(t *testing.T) {
	_, err := ReadRequest(bytes.NewReader([]byte{0, 0, 0, 0}))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("ReadRequest(empty body) error = %v, want ErrMalformedPayload", err)
	}
}

func TestReadRequestRejectsMissingCommand(t *testing.T) {
	msg, err := Encode(map[string]any{"params": map[string]any{}})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	_, err = ReadRequest(bytes.NewReader(msg))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("ReadRequest(no command) error = %v, want ErrMalformedPayload", err)
	}
}

func TestReadResult(t *testing.T) {
	msg, err := Encode(OK(map[string]any{"pong": true}))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	res, err := ReadResult(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("ReadResult() error = %v", err)
	}
	if !res.Success {
		t.Fatalf("res.Success = false, want true")
	}

	var payload struct {
		Pong bool `json:"pong"`
	}
	if err := res.Decode(&payload); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !payload.Pong {
		t.Errorf("payload.Pong = false, want true")
	}
}

func TestResultExactlyOneOfResultError(t *testing.T) {
	ok := OK("fine")
	if ok.Error != "" || ok.Result == nil {
		t.Errorf("OK() = %+v, want result only", ok)
	}

	fail := Errorf("no object named %q", "Cube")
	if fail.Success || fail.Result != nil || fail.Error == "" {
		t.Errorf("Errorf() = %+v, want error only", fail)
	}
}

func TestWriteMessagePropagatesWriteError(t *testing.T) {
	if err := WriteMessage(failWriter{}, map[string]any{"command": "ping"}); err == nil {
		t.Error("WriteMessage(failing writer) error = nil, want error")
	}
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }
