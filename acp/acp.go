package acp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sync"

	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/logging"
)

// Version is the JSON-RPC version carried by every message.
const Version = "2.0"

// Standard JSON-RPC error codes, plus CodeBusy for requests refused because
// an agent cycle is in progress.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeBusy           = -32000
)

// maxFrame bounds a single message. Prompts may embed whole files.
const maxFrame = 16 << 20

// Request is an inbound call or notification. A notification has no ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the sender expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Decode unmarshals the params into v. Missing params leave v untouched.
func (r *Request) Decode(v any) error {
	if len(r.Params) == 0 || string(r.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Params, v); err != nil {
		return errors.Wrapf(err, "invalid params for %s", r.Method)
	}
	return nil
}

// Response answers a Request. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// ParseRequest decodes one frame.
func ParseRequest(payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, errors.Wrapf(err, "malformed JSON-RPC message")
	}
	if req.Method == "" {
		return req, errors.New("JSON-RPC message has no method")
	}
	return req, nil
}

// Conn is a newline-delimited JSON-RPC connection.
type Conn struct {
	in  *bufio.Scanner
	out *bufio.Writer
	mu  sync.Mutex
}

func NewConn(r io.Reader, w io.Writer) *Conn {
	in := bufio.NewScanner(r)
	in.Buffer(make([]byte, 64<<10), maxFrame)
	return &Conn{in: in, out: bufio.NewWriter(w)}
}

// ReadMessage returns the next non-empty frame. It returns io.EOF once the
// input is exhausted.
func (c *Conn) ReadMessage() ([]byte, error) {
	for c.in.Scan() {
		line := bytes.TrimSpace(c.in.Bytes())
		if len(line) == 0 {
			continue
		}
		logging.Debug("acp recv", "frame", string(line))
		return bytes.Clone(line), nil
	}
	if err := c.in.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, errors.Wrapf(err, "frame exceeds the %d byte limit", maxFrame)
		}
		return nil, errors.Wrapf(err, "error reading frame")
	}
	return nil, io.EOF
}

// Respond sends a successful response. A nil result is sent as null.
func (c *Conn) Respond(id json.RawMessage, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrapf(err, "failed to serialize result")
	}
	return c.WriteJSON(Response{JSONRPC: Version, ID: id, Result: data})
}

func (c *Conn) RespondError(id json.RawMessage, code int, msg string, data any) error {
	return c.WriteJSON(Response{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: msg, Data: data}})
}

// Notify sends a message without an ID.
func (c *Conn) Notify(method string, params any) error {
	return c.WriteJSON(notification{JSONRPC: Version, Method: method, Params: params})
}

// WriteJSON serializes v as one frame.
func (c *Conn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to serialize JSON-RPC message")
	}
	return c.WriteRaw(data)
}

// WriteRaw forwards an already encoded message, compacting it onto a single
// line.
func (c *Conn) WriteRaw(payload []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return errors.Wrapf(err, "refusing to forward invalid JSON")
	}
	buf.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	logging.Debug("acp send", "frame", buf.String())
	if _, err := c.out.Write(buf.Bytes()); err != nil {
		return err
	}
	return c.out.Flush()
}
