// Package wire implements the framed JSON protocol spoken between the
// bridge and the host executor. Each message is a 4-byte big-endian
// length prefix followed by a UTF-8 JSON body of exactly that many bytes.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrFraming indicates the stream ended or broke inside a length prefix.
// Framing errors are fatal to the connection that produced them.
var ErrFraming = errors.New("wire: framing error")

// ErrMalformedPayload indicates a body that is not valid JSON, or a body
// the caller required to be an object but was not.
var ErrMalformedPayload = errors.New("wire: malformed payload")

// lengthSize is the fixed size of the length prefix.
const lengthSize = 4

// MaxBodySize bounds a single message body. Screenshot payloads are
// base64-encoded images, so the ceiling is generous.
const MaxBodySize = 64 * 1024 * 1024

// Encode frames v as a single wire message: length prefix plus JSON body.
func Encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding body: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("%w: body of %d bytes exceeds maximum %d", ErrMalformedPayload, len(body), MaxBodySize)
	}

	msg := make([]byte, lengthSize+len(body))
	binary.BigEndian.PutUint32(msg[:lengthSize], uint32(len(body)))
	copy(msg[lengthSize:], body)
	return msg, nil
}

// WriteMessage encodes v and writes the full frame to w.
func WriteMessage(w io.Writer, v any) error {
	msg, err := Encode(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message from r and returns the raw JSON
// body. It reads exactly the prefixed number of bytes, looping on partial
// reads; a single Read is never assumed to return the full payload.
//
// A zero-length body is legal at this layer and returned as the JSON
// literal "null". Callers that require an object must reject it
// themselves (ReadRequest and ReadResult do).
func ReadMessage(r io.Reader) (json.RawMessage, error) {
	var prefix [lengthSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: reading length prefix: %v", ErrFraming, err)
		}
		return nil, fmt.Errorf("reading length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	if length > MaxBodySize {
		return nil, fmt.Errorf("%w: body length %d exceeds maximum %d", ErrFraming, length, MaxBodySize)
	}
	if length == 0 {
		return json.RawMessage("null"), nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: reading %d-byte body: %v", ErrFraming, length, err)
		}
		// Deadline and I/O errors keep their identity so callers can
		// distinguish a slow host from a corrupt stream.
		return nil, fmt.Errorf("reading message body: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrMalformedPayload)
	}
	return body, nil
}

// ReadRequest reads one framed CommandRequest from r.
func ReadRequest(r io.Reader) (*CommandRequest, error) {
	body, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}

	var req CommandRequest
	if err := unmarshalObject(body, &req); err != nil {
		return nil, err
	}
	if req.Command == "" {
		return nil, fmt.Errorf("%w: request has no command", ErrMalformedPayload)
	}
	return &req, nil
}

// ReadResult reads one framed CommandResult from r.
func ReadResult(r io.Reader) (*CommandResult, error) {
	body, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}

	var res CommandResult
	if err := unmarshalObject(body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func unmarshalObject(body json.RawMessage, v any) error {
	if isJSONNull(body) {
		return fmt.Errorf("%w: expected an object, got empty body", ErrMalformedPayload)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func isJSONNull(body json.RawMessage) bool {
	return len(body) == 0 || string(body) == "null"
}
