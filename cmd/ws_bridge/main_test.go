package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoAgent answers every request with its method name as the result.
func echoAgent(ctx context.Context, command []string) (io.WriteCloser, io.Reader, func() error, error) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	go func() {
		defer outW.Close()
		sc := bufio.NewScanner(inR)
		for sc.Scan() {
			var req struct {
				ID     json.RawMessage `json:"id"`
				Method string          `json:"method"`
			}
			if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
				return
			}
			resp, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": req.Method})
			outW.Write(append(resp, '\n'))
		}
	}()
	return inW, outR, func() error { return nil }, nil
}

func dial(t *testing.T, b *bridge) *websocket.Conn {
	t.Helper()
	conn, _, err := dialWithOrigin(t, b, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func dialWithOrigin(t *testing.T, b *bridge, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	header := http.Header{}
	if origin == "self" {
		origin = srv.URL
	}
	if origin != "" {
		header.Set("Origin", origin)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

func TestBridgeForwardsFrames(t *testing.T) {
	conn := dial(t, &bridge{command: []string{"agent"}, start: echoAgent})

	// Pretty-printed input must reach the agent as a single line.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{\n \"jsonrpc\": \"2.0\",\n \"id\": 1,\n \"method\": \"initialize\"\n}")); err != nil {
		t.Fatal(err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(msg) != `{"jsonrpc":"2.0","id":1,"result":"initialize"}` {
		t.Errorf("got %s", msg)
	}

	// Invalid JSON is dropped, the connection stays usable.
	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":2,"method":"session/new"}`))
	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(msg), `"result":"session/new"`) {
		t.Errorf("got %s", msg)
	}
}

func TestBridgeReportsStartFailure(t *testing.T) {
	failing := func(context.Context, []string) (io.WriteCloser, io.Reader, func() error, error) {
		return nil, nil, nil, io.ErrUnexpectedEOF
	}
	conn := dial(t, &bridge{command: []string{"missing"}, start: failing})

	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseInternalServerErr) {
		t.Errorf("expected an internal-error close, got %v", err)
	}
}

func TestBridgeChecksOrigin(t *testing.T) {
	b := &bridge{command: []string{"agent"}, start: echoAgent, allowOrigins: []string{"http://localhost:5173/"}}

	_, resp, err := dialWithOrigin(t, b, "https://attacker.example")
	if err == nil {
		t.Fatal("foreign origin was accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("foreign origin response = %v", resp)
	}

	for _, origin := range []string{"self", "http://localhost:5173"} {
		conn, _, err := dialWithOrigin(t, b, origin)
		if err != nil {
			t.Errorf("origin %s rejected: %v", origin, err)
			continue
		}
		conn.Close()
	}
}
