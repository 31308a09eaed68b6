package mcp

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/m4xw311/aiteam/config"
	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/logging"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Caller is the part of an MCP client session used to run commands.
type Caller interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
}

// Terminal runs execute_command directives through a tool exposed by an MCP
// server, such as a sandboxed shell. Calls are started in the background and
// their results only reach the log.
type Terminal struct {
	Name     string
	toolName string
	caller   Caller
	cmd      *exec.Cmd
	session  *mcpsdk.ClientSession

	wg sync.WaitGroup
}

// Start launches the configured MCP server subprocess and checks that it
// offers the requested tool.
func Start(ctx context.Context, server config.MCPServer, toolName string) (*Terminal, error) {
	cmd := exec.Command(server.Command, server.Args...)
	cmd.Stderr = os.Stderr
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "aiteam", Version: "v1.0.0"}, nil)
	session, err := client.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", server.Name)
	}

	found := false
	params := &mcpsdk.ListToolsParams{}
	for !found {
		list, err := session.ListTools(ctx, params)
		if err != nil {
			session.Close()
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", server.Name)
		}
		for _, t := range list.Tools {
			if t.Name == toolName {
				found = true
				break
			}
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}
	if !found {
		session.Close()
		cmd.Process.Kill()
		return nil, errors.New("MCP server '%s' has no tool '%s'", server.Name, toolName)
	}

	logging.Info("connected MCP terminal", "server", server.Name, "tool", toolName)
	t := NewTerminal(server.Name, toolName, session)
	t.cmd = cmd
	t.session = session
	return t, nil
}

// NewTerminal wraps an existing session.
func NewTerminal(name, toolName string, caller Caller) *Terminal {
	return &Terminal{Name: name, toolName: toolName, caller: caller}
}

func (t *Terminal) Run(ctx context.Context, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return errors.ToolExecution(errors.New("empty command"))
	}

	callCtx := context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		result, err := t.caller.CallTool(callCtx, &mcpsdk.CallToolParams{
			Name:      t.toolName,
			Arguments: map[string]any{"command": command},
		})
		if err != nil {
			logging.Warn("MCP command failed", "server", t.Name, "command", command, "error", err)
			return
		}
		output := textOf(result)
		if result.IsError {
			logging.Warn("MCP command reported an error", "server", t.Name, "command", command, "output", output)
			return
		}
		logging.Debug("MCP command finished", "server", t.Name, "command", command, "output", output)
	}()
	return nil
}

// Wait blocks until all started commands have returned.
func (t *Terminal) Wait() {
	t.wg.Wait()
}

// Stop closes the session and terminates the server subprocess.
func (t *Terminal) Stop() error {
	t.Wait()
	if t.session != nil {
		t.session.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		logging.Info("terminating MCP server", "server", t.Name)
		return t.cmd.Process.Kill()
	}
	return nil
}

func textOf(result *mcpsdk.CallToolResult) string {
	var b strings.Builder
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}
