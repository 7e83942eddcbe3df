// Demo program wiring the full heron runtime: settings, permission engine
// with an interactive gate, hook runner, background tasks, subagent
// delegation, and the tool-calling loop.
//
// The model client here is a scripted stub that requests one shell command
// and then closes the turn, which is enough to exercise the permission
// prompt and the tool pipeline end to end. Real deployments implement
// llm.Client against their inference service and pass it in the same way.
//
// Usage:
//
//	go run ./cmd/heron -prompt "list the project files"
//	go run ./cmd/heron -mode bypassPermissions -command "ls -la"
//	go run ./cmd/heron -continue
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rsmyth-dev/heron/pkg/agent"
	"github.com/rsmyth-dev/heron/pkg/bgtask"
	"github.com/rsmyth-dev/heron/pkg/hooks"
	"github.com/rsmyth-dev/heron/pkg/llm"
	"github.com/rsmyth-dev/heron/pkg/permission"
	"github.com/rsmyth-dev/heron/pkg/session"
	"github.com/rsmyth-dev/heron/pkg/settings"
	"github.com/rsmyth-dev/heron/pkg/subagent"
	"github.com/rsmyth-dev/heron/pkg/tools"
	"github.com/rsmyth-dev/heron/pkg/types"
)

func main() {
	prompt := flag.String("prompt", "list the files here", "prompt to send")
	command := flag.String("command", "ls", "shell command the scripted model will request")
	model := flag.String("model", "", "model name (default: HERON_MODEL or built-in)")
	mode := flag.String("mode", "default", "permission mode: default, acceptEdits, plan, bypassPermissions")
	maxTurns := flag.Int("max-turns", 10, "maximum model round-trips")
	resume := flag.String("resume", "", "session id to resume")
	continueLast := flag.Bool("continue", false, "continue the most recent session for this directory")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	workdir, err := os.Getwd()
	if err != nil {
		fatal("getwd: %v", err)
	}

	if err := run(workdir, *prompt, *command, *model, *mode, *resume, *maxTurns, *continueLast, logger); err != nil {
		fatal("%v", err)
	}
}

func run(workdir, prompt, command, model, mode, resume string, maxTurns int, continueLast bool, logger *slog.Logger) error {
	merged, err := settings.Load(settings.ProjectPath(workdir), settings.UserPath())
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	runner, err := hooks.NewRunner(hooks.RunnerConfig{
		Hooks:   merged.Hooks,
		Workdir: workdir,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("hook configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gate := permission.NewGate()
	go answerPrompts(ctx, gate)

	engine, err := permission.NewEngine(permission.EngineConfig{
		Mode:        types.PermissionMode(mode),
		Workdir:     workdir,
		AllowRules:  merged.AllowRules,
		Gate:        gate,
		PersistPath: settings.ProjectPath(workdir),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	store, err := session.NewStore(filepath.Join(workdir, ".heron", "sessions"), logger)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}

	tasks := bgtask.NewRegistry(logger)
	registry := agent.DefaultRegistry(workdir, tasks, nil)

	// The scripted model: one tool request, then a closing message.
	client := llm.NewStubClient(
		llm.ToolTurn("demo-1", "Bash", map[string]any{"command": command}),
		llm.TextTurn("Command finished; see the tool output above."),
	)

	cfg := agent.Config{
		Model:          model,
		Workdir:        workdir,
		MaxTurns:       maxTurns,
		PermissionMode: types.PermissionMode(mode),
		SystemPrompt:   "You are a coding agent operating in " + workdir + ".",
		Resume:         resume,
		ContinueLast:   continueLast,
		Client:         client,
		Tools:          registry,
		Permissions:    engine,
		Hooks:          runner,
		Tasks:          tasks,
		Store:          store,
		Logger:         logger,
	}

	a, err := agent.New(cfg)
	if err != nil {
		return err
	}
	defer a.Destroy()

	// Subagent definitions, hot-reloaded while running.
	subRegistry := subagent.NewRegistry(subagent.NewLoader(workdir, "", logger), logger)
	go func() {
		// Watch blocks until ctx is cancelled.
		if err := subRegistry.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("definition watch unavailable", "err", err)
		}
	}()
	delegator := subagent.NewDelegator(subRegistry, cfg, a.State(), logger)
	registry.Register(&tools.TaskTool{Delegator: delegator})
	registry.Register(&tools.TaskOutputTool{Sources: []tools.TaskSource{tools.ShellTasks(tasks), delegator}})
	registry.Register(&tools.KillTaskTool{Sources: []tools.TaskSource{tools.ShellTasks(tasks), delegator}})

	fmt.Printf("session %s\n", a.SessionID())
	fmt.Println(strings.Repeat("-", 60))

	res, err := a.Prompt(ctx, prompt)
	if err != nil {
		return err
	}

	for _, msg := range a.State().Messages() {
		printMessage(msg)
	}
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("exit=%s turns=%d tokens(in=%d out=%d)\n",
		res.ExitReason, res.Turns, res.Usage.InputTokens, res.Usage.OutputTokens)
	return nil
}

// answerPrompts resolves permission requests from the terminal.
func answerPrompts(ctx context.Context, gate *permission.Gate) {
	stdin := bufio.NewReader(os.Stdin)
	gate.RespondFunc(ctx, func(req *permission.PendingRequest) permission.Response {
		fmt.Printf("\n[permission] %s %v\n", req.ToolName, req.Input)
		if len(req.SuggestedRules) > 0 {
			fmt.Printf("[permission] granting always would persist: %s\n",
				strings.Join(req.SuggestedRules, ", "))
		}
		fmt.Print("[permission] allow? (y)es / (n)o / (a)lways: ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return permission.Response{Behavior: "deny", Message: "no interactive input"}
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return permission.Response{Behavior: "allow"}
		case "a", "always":
			return permission.Response{Behavior: "allow", DontAskAgain: true}
		default:
			return permission.Response{Behavior: "deny", Message: "denied at the prompt"}
		}
	})
}

func printMessage(msg types.Message) {
	for _, b := range msg.Blocks {
		switch b.Type {
		case types.BlockText:
			fmt.Printf("%s: %s\n", msg.Role, b.Text)
		case types.BlockTool:
			status := string(b.Stage)
			if b.Success != nil {
				if *b.Success {
					status = "ok"
				} else {
					status = "failed: " + b.ErrText
				}
			}
			fmt.Printf("%s: [%s %s] %s\n", msg.Role, b.ToolName, status, firstLine(b.Result))
		case types.BlockSubagent:
			fmt.Printf("%s: [subagent %s] %s\n", msg.Role, b.SubagentType, firstLine(b.Text))
		case types.BlockCompress:
			fmt.Printf("%s: [summary] %s\n", msg.Role, firstLine(b.Text))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "heron: "+format+"\n", args...)
	os.Exit(1)
}
