// Package protocol provides encoding/decoding for the native wire protocol.
//
// Every message is terminated by EOT (0x04). Responses are either plain text
// (the welcome banner) or JSON objects.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

const (
	// EOT is the End of Transmission character used for message framing
	EOT byte = 0x04

	// PROTOCOL_VERSION is the current wire protocol version
	PROTOCOL_VERSION = 2

	// WelcomeCode is the status code the server sends after a login line.
	WelcomeCode = "S0001"
)

// Codec handles encoding and decoding of protocol messages
type Codec interface {
	// Encode frames a statement for the wire. Statements containing EOT are rejected.
	Encode(command string) ([]byte, error)

	// Decode parses a raw message into a Response
	Decode(data []byte) (*Response, error)

	// EncodeLogin builds the login line for the given address and credentials.
	EncodeLogin(address, database, username, password string) []byte

	// EncodeVersionHandshake creates the protocol version message
	EncodeVersionHandshake() []byte

	// DecodeVersionResponse parses the server's version response
	DecodeVersionResponse(data []byte) error
}

// Response represents a decoded protocol response
type Response struct {
	Data    interface{}            `json:"data,omitempty"`
	Success bool                   `json:"success"`
	Status  string                 `json:"status,omitempty"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`

	// Raw is the undecoded payload without the trailing EOT.
	Raw string `json:"-"`
}

// ErrorMessage returns the most specific failure text carried by the response.
func (r *Response) ErrorMessage() string {
	if r.Error != "" {
		return r.Error
	}
	if r.Message != "" {
		return r.Message
	}
	return "unknown error"
}

// IsWelcome reports whether the response is the server's welcome banner.
func (r *Response) IsWelcome() bool {
	return strings.Contains(r.Raw, WelcomeCode)
}

// wireResponse keeps "success" as a pointer so an absent key is not a failure.
type wireResponse struct {
	Data    interface{}            `json:"data"`
	Success *bool                  `json:"success"`
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Error   json.RawMessage        `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details"`
}

// NativeCodec implements the native wire protocol codec
type NativeCodec struct {
	bufferPool sync.Pool
}

// NewCodec creates a new protocol codec
func NewCodec() Codec {
	return &NativeCodec{
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Encode frames a statement with the EOT terminator.
func (c *NativeCodec) Encode(command string) ([]byte, error) {
	if i := strings.IndexByte(command, EOT); i >= 0 {
		return nil, FramingError("statement contains the EOT frame delimiter", map[string]interface{}{
			"offset": i,
		})
	}

	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	buf.WriteString(command)
	buf.WriteByte(EOT)

	// Return a copy since we're reusing the buffer
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// EncodeLogin builds "syndrdb://HOST:PORT:DATABASE:USERNAME:PASSWORD;" framed with EOT.
func (c *NativeCodec) EncodeLogin(address, database, username, password string) []byte {
	return []byte(fmt.Sprintf("syndrdb://%s:%s:%s:%s;%c", address, database, username, password, EOT))
}

// Decode parses a raw message into a Response
func (c *NativeCodec) Decode(data []byte) (*Response, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response data")
	}

	// Remove trailing EOT if present
	if data[len(data)-1] == EOT {
		data = data[:len(data)-1]
	}
	raw := strings.TrimSpace(string(data))

	var w wireResponse
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		// Plain text messages (e.g. the welcome banner) are successes
		return &Response{
			Success: true,
			Message: raw,
			Raw:     raw,
		}, nil
	}

	resp := &Response{
		Data:    w.Data,
		Status:  w.Status,
		Message: w.Message,
		Error:   decodeErrorField(w.Error),
		Code:    w.Code,
		Details: w.Details,
		Raw:     raw,
	}

	failed := false
	switch {
	case w.Success != nil:
		failed = !*w.Success
	case strings.EqualFold(w.Status, "error"), strings.EqualFold(w.Status, "failure"):
		failed = true
	case resp.Error != "":
		failed = true
	}
	resp.Success = !failed

	return resp, nil
}

// decodeErrorField accepts both a string and an object for "error".
func decodeErrorField(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg, ok := obj["message"].(string); ok {
			return msg
		}
	}
	return string(raw)
}

// EncodeVersionHandshake creates the protocol version message
func (c *NativeCodec) EncodeVersionHandshake() []byte {
	return []byte(fmt.Sprintf("PROTOCOL_VERSION %d%c", PROTOCOL_VERSION, EOT))
}

// DecodeVersionResponse parses the server's version response
func (c *NativeCodec) DecodeVersionResponse(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty version response")
	}

	// Remove trailing EOT if present
	if data[len(data)-1] == EOT {
		data = data[:len(data)-1]
	}

	msg := string(data)

	// Expected format: "PROTOCOL_OK 2"
	if strings.HasPrefix(msg, "PROTOCOL_OK") {
		return nil
	}

	// Expected format: "PROTOCOL_ERROR unsupported_version"
	if strings.HasPrefix(msg, "PROTOCOL_ERROR") {
		return &ProtocolVersionError{
			Message: strings.TrimSpace(strings.TrimPrefix(msg, "PROTOCOL_ERROR")),
		}
	}

	return fmt.Errorf("unexpected version response: %s", msg)
}

// ProtocolVersionError indicates a protocol version mismatch
type ProtocolVersionError struct {
	Message string
}

func (e *ProtocolVersionError) Error() string {
	return fmt.Sprintf("protocol version mismatch: %s", e.Message)
}
