// Command ws_bridge exposes an ACP agent running on stdio to browser and
// webview clients over WebSocket. Each connection starts its own agent
// process; every text message is one JSON-RPC frame.
//
//	ws_bridge --addr :8080 -- aiteam --acp
package main

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/m4xw311/aiteam/acp"
	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/logging"
)

func main() {
	var addr, logLevel string
	var allowOrigins []string
	cmd := &cobra.Command{
		Use:          "ws_bridge -- <agent command> [args...]",
		Short:        "Bridge WebSocket clients to an ACP agent on stdio",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Configure(logging.ParseLevel(logLevel), os.Stderr)
			mux := http.NewServeMux()
			mux.Handle("/ws", &bridge{command: args, allowOrigins: allowOrigins})
			logging.Info("WebSocket bridge listening", "addr", addr, "command", args)
			return http.ListenAndServe(addr, mux)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "address to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level written to stderr")
	cmd.Flags().StringSliceVar(&allowOrigins, "allow-origin", nil, "additional browser origin allowed to connect, e.g. http://localhost:5173 (repeatable)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type bridge struct {
	command []string
	// allowOrigins lists browser origins accepted besides the bridge's own
	// host.
	allowOrigins []string
	// start launches the agent; tests replace it.
	start func(ctx context.Context, command []string) (io.WriteCloser, io.Reader, func() error, error)
}

// checkOrigin rejects browser pages from foreign origins unless they were
// listed with --allow-origin. Requests without an Origin header are accepted.
func (b *bridge) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range b.allowOrigins {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (b *bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: b.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	start := b.start
	if start == nil {
		start = startProcess
	}
	stdin, stdout, wait, err := start(ctx, b.command)
	if err != nil {
		logging.Error("could not start agent", "command", b.command, "error", err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "agent failed to start"))
		return
	}
	logging.Info("client connected", "remote", r.RemoteAddr)

	var wsMu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		pumpToClient(acp.NewConn(stdout, io.Discard), conn, &wsMu)
	}()

	agent := acp.NewConn(eofReader{}, stdin)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logging.Info("client disconnected", "remote", r.RemoteAddr, "error", err)
			break
		}
		if err := agent.WriteRaw(msg); err != nil {
			logging.Warn("dropping client frame", "error", err)
		}
	}

	stdin.Close()
	cancel()
	<-done
	if err := wait(); err != nil {
		logging.Debug("agent exited", "error", err)
	}
}

// pumpToClient forwards every frame the agent writes as one text message.
func pumpToClient(agent *acp.Conn, conn *websocket.Conn, mu *sync.Mutex) {
	for {
		frame, err := agent.ReadMessage()
		if err != nil {
			if err != io.EOF {
				logging.Warn("agent output error", "error", err)
			}
			return
		}
		mu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, frame)
		mu.Unlock()
		if err != nil {
			logging.Warn("websocket write failed", "error", err)
			return
		}
	}
}

func startProcess(ctx context.Context, command []string) (io.WriteCloser, io.Reader, func() error, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "error getting stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "error getting stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, errors.Wrapf(err, "error getting stderr")
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, errors.Wrapf(err, "error starting agent")
	}

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			logging.Info("agent stderr", "line", sc.Text())
		}
	}()
	return stdin, stdout, cmd.Wait, nil
}

// eofReader backs the write-only side of the agent connection.
type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
