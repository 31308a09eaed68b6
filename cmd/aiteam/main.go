package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/m4xw311/aiteam/agent"
	"github.com/m4xw311/aiteam/agent/acp"
	"github.com/m4xw311/aiteam/agent/terminal"
	"github.com/m4xw311/aiteam/config"
	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/llm"
	"github.com/m4xw311/aiteam/logging"
	"github.com/m4xw311/aiteam/review"
	"github.com/m4xw311/aiteam/session"
	"github.com/m4xw311/aiteam/tools"
	"github.com/m4xw311/aiteam/tools/mcp"
)

var version = "0.1.0"

type options struct {
	agent   string
	session string
	resume  string
	open    string
	acp     bool
	trace   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	root := &cobra.Command{
		Use:   "aiteam [prompt]",
		Short: "A team of AI specialists working in your project",
		Long: `aiteam talks to a configured specialist agent about your project. The agent
can read files, run allowed commands and propose file changes, which are
applied only after you accept the diff.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.agent, "agent", "a", "", "agent profile to talk to (default: active_agent)")
	flags.StringVarP(&opts.session, "session", "s", "", "name of the session to create")
	flags.StringVarP(&opts.resume, "resume", "r", "", "resume a saved session by name")
	flags.StringVar(&opts.open, "open", "", "file to show the agent as the open editor file")
	flags.BoolVar(&opts.acp, "acp", false, "serve the Agent Client Protocol on stdio")
	flags.BoolVar(&opts.trace, "trace", false, "write debug logs to .aiteam/aiteam.log")

	root.AddCommand(newAgentsCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aiteam version %s\n", version)
		},
	})
	return root
}

func run(ctx context.Context, opts options, args []string, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		return errors.Wrapf(err, "error loading configuration")
	}
	if err := setupLogging(cfg, opts.trace); err != nil {
		return err
	}
	defer logging.Close()

	wd, err := os.Getwd()
	if err != nil {
		return errors.Wrapf(err, "could not get working directory")
	}
	fsys, err := tools.NewLocalFS(wd, cfg.FilesystemAccess)
	if err != nil {
		return err
	}
	term, stop, err := newTerminal(ctx, cfg, wd)
	if err != nil {
		return err
	}
	defer stop()

	tree := tools.NewTree(wd, cfg.Ignore)
	go func() {
		if err := tree.Watch(ctx); err != nil {
			logging.Warn("project tree watcher stopped", "error", err)
		}
	}()

	model := llm.NewRouter(cfg.OllamaHost)
	logging.Info("aiteam starting", "version", version, "acp", opts.acp, "agents", len(cfg.Agents))

	if opts.acp {
		if opts.agent != "" {
			cfg.ActiveAgent = opts.agent
		}
		return acp.Run(ctx, acp.Options{
			Config:   cfg,
			Model:    model,
			FS:       fsys,
			Terminal: term,
			Tree:     tree,
		}, in, out)
	}

	store, err := openSession(opts, out)
	if err != nil {
		return err
	}

	deps := agent.Deps{
		Model:    model,
		FS:       fsys,
		Terminal: term,
		Reviewer: review.NewPrinter(out),
		Tree:     tree,
	}
	if opts.open != "" {
		data, err := os.ReadFile(opts.open)
		if err != nil {
			return errors.Wrapf(err, "could not open %s", opts.open)
		}
		deps.Editor = tools.StaticEditor{Path: filepath.ToSlash(opts.open), Text: string(data)}
	}
	ctrl := agent.New(cfg, store, deps)

	name := opts.agent
	if profile, err := cfg.Agent(opts.agent); err == nil {
		name = profile.Name
		if name == "" {
			name = profile.ID
		}
		opts.agent = profile.ID
	} else {
		fmt.Fprintf(out, "Warning: %v\n", err)
	}

	stopSignals := cancelOnInterrupt(ctrl)
	defer stopSignals()

	fmt.Fprintf(out, "%s is ready. Type your prompt, or /quit to leave.\n", name)
	return terminal.New(ctrl, agent.NewCycleSession(opts.agent), name, in, out).Run(ctx, strings.Join(args, " "))
}

func setupLogging(cfg *config.Config, trace bool) error {
	switch {
	case trace:
		return logging.EnableFileLogging(config.Dir, logging.LevelDebug)
	case cfg.LogLevel != "":
		return logging.EnableFileLogging(config.Dir, logging.ParseLevel(cfg.LogLevel))
	}
	return nil
}

// newTerminal runs commands locally, or through an MCP server when
// terminal.mcp_server is configured.
func newTerminal(ctx context.Context, cfg *config.Config, wd string) (tools.Terminal, func(), error) {
	if cfg.Terminal.MCPServer == "" {
		return tools.NewLocalTerminal(wd, cfg.AllowedCommands, cfg.CommandTimeout), func() {}, nil
	}
	server, err := cfg.MCPServer(cfg.Terminal.MCPServer)
	if err != nil {
		return nil, nil, err
	}
	t, err := mcp.Start(ctx, *server, cfg.Terminal.Tool)
	if err != nil {
		return nil, nil, err
	}
	return t, func() {
		t.Wait()
		if err := t.Stop(); err != nil {
			logging.Warn("stopping MCP terminal failed", "server", server.Name, "error", err)
		}
	}, nil
}

func openSession(opts options, out io.Writer) (*session.Store, error) {
	if opts.resume != "" {
		store, err := session.Load(opts.resume)
		if err != nil {
			return nil, errors.Wrapf(err, "error resuming session '%s'", opts.resume)
		}
		fmt.Fprintf(out, "Resuming session: %s (%d turns)\n", opts.resume, store.Len())
		return store, nil
	}

	name := opts.session
	if name == "" {
		name = defaultSessionName()
	}
	store, err := session.New(name)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating session '%s'", name)
	}
	fmt.Fprintf(out, "Starting new session: %s\n", name)
	return store, nil
}

// cancelOnInterrupt makes Ctrl-C cancel the running cycle. When nothing is
// running it exits.
func cancelOnInterrupt(ctrl *agent.Controller) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sig:
				if ctrl.State() == agent.Idle {
					if err := ctrl.Store().Save(); err != nil {
						logging.Warn("failed to save session", "error", err)
					}
					os.Exit(130)
				}
				ctrl.Cancel()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "aiteam"
	}
	return fmt.Sprintf("%s_%s", filepath.Base(wd), time.Now().Format("2006-01-02_15-04-05"))
}
