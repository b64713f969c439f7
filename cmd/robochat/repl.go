package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/robochat-dev/robochat/pkg/backend"
	"github.com/robochat-dev/robochat/pkg/chat"
	"github.com/robochat-dev/robochat/pkg/parser"
	"github.com/robochat-dev/robochat/pkg/pipeline"
	"github.com/robochat-dev/robochat/pkg/session"
	"github.com/robochat-dev/robochat/pkg/task"
)

const replHelp = `Commands:
  /image <path|url>   pin the scene image
  /task [type]        show or set the task type (general, grounding,
                      affordance, trajectory, pointing, auto)
  /pipeline <goal>    decompose a goal and run it step by step
  /history            show the transcript
  /clear              drop the transcript and the pinned image
  /save [id]          save the conversation to the session store
  /load <id>          restore a saved conversation
  /help               show this help
  /quit               exit`

func newChatCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := newBackend(ctx)
			if err != nil {
				return err
			}
			store, err := newStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			stopJanitor := startJanitor(store)
			defer stopJanitor()
			stopMetrics := startMetrics()
			defer stopMetrics()

			conv := newConversation(b, sessionID)
			return runREPL(ctx, conv, store)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (default: generated)")
	return cmd
}

func newConversation(b backend.Backend, sessionID string) *chat.Conversation {
	opts := []chat.Option{
		chat.WithWindow(cfg.Chat.Window),
		chat.WithMaxTurns(cfg.Chat.MaxTurns),
		chat.WithAskTimeout(cfg.Backend.Timeout.Std()),
		chat.WithSampling(cfg.Backend.Temperature, cfg.Backend.MaxTokens),
	}
	if sessionID != "" {
		opts = append(opts, chat.WithID(sessionID))
	}
	if cfg.Chat.SystemPrompt != "" {
		opts = append(opts, chat.WithSystemPrompt(cfg.Chat.SystemPrompt))
	}
	if t, err := task.Parse(cfg.Chat.DefaultTask); err == nil {
		opts = append(opts, chat.WithDefaultTask(t))
	}
	return chat.New(b, opts...)
}

func runREPL(ctx context.Context, conv *chat.Conversation, store session.Store) error {
	line := liner.NewLiner()
	defer func() { _ = line.Close() }()
	line.SetCtrlCAborts(true)

	fmt.Printf("robochat %s — session %s\n", version, conv.ID())
	fmt.Println("Type /help for commands.")

	current := task.Auto
	for {
		input, err := line.Prompt("robochat> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			quit, newTask := handleCommand(ctx, conv, store, input, current)
			current = newTask
			if quit {
				return nil
			}
			continue
		}

		if !conv.HasImage() {
			fmt.Println("note: no image pinned; answers are text-only (/image <path>)")
		}
		ans, err := conv.Ask(ctx, input, current)
		if err != nil {
			printAskError(err)
			continue
		}
		printAnswer(ans)
	}
}

// handleCommand executes one slash command. Returns whether to quit
// and the (possibly updated) task selection.
func handleCommand(ctx context.Context, conv *chat.Conversation, store session.Store, input string, current task.Type) (bool, task.Type) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, current

	case "/help":
		fmt.Println(replHelp)

	case "/image":
		if arg == "" {
			fmt.Println("usage: /image <path|url>")
			break
		}
		img, err := loadImage(arg)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		conv.SetImage(img)
		fmt.Println("image pinned")

	case "/task":
		if arg == "" {
			fmt.Printf("task: %s\n", current)
			break
		}
		t, err := task.Parse(arg)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		current = t
		fmt.Printf("task set to %s\n", t)

	case "/pipeline":
		if arg == "" {
			fmt.Println("usage: /pipeline <goal>")
			break
		}
		runPipeline(ctx, conv, arg)

	case "/history":
		history := conv.History()
		if len(history) == 0 {
			fmt.Println("(empty)")
			break
		}
		for _, turn := range history {
			fmt.Printf("[%s] %s: %s\n", turn.Task, turn.Role, truncate(turn.Content, 120))
		}

	case "/clear":
		if err := conv.Reset(); err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		fmt.Println("history and image cleared")

	case "/save":
		id := arg
		if id == "" {
			id = conv.ID()
		}
		if err := conv.SaveAs(ctx, store, id); err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		fmt.Printf("saved session %s\n", id)

	case "/load":
		if arg == "" {
			fmt.Println("usage: /load <id>")
			break
		}
		if err := conv.Load(ctx, store, arg); err != nil {
			var formatErr *chat.FormatError
			if errors.As(err, &formatErr) {
				fmt.Printf("error: stored session is corrupt: %v\n", formatErr.Err)
			} else {
				fmt.Printf("error: %v\n", err)
			}
			break
		}
		fmt.Printf("loaded session %s (%d turns)\n", conv.ID(), len(conv.History()))

	default:
		fmt.Printf("unknown command %s (try /help)\n", cmd)
	}
	return false, current
}

func runPipeline(ctx context.Context, conv *chat.Conversation, goal string) {
	plan := pipeline.NewPlan(goal)
	fmt.Printf("plan (%d steps):\n", len(plan.Steps))
	for _, s := range plan.Steps {
		fmt.Printf("  %d. [%s] %s\n", s.Index, s.Task, s.Prompt)
	}

	exec := pipeline.NewExecutor(conv,
		pipeline.WithStepTimeout(cfg.Backend.Timeout.Std()),
		pipeline.WithProgress(func(s pipeline.Step) {
			switch s.State {
			case pipeline.StepExecuting:
				fmt.Printf("step %d/%d [%s] ...\n", s.Index, len(plan.Steps), s.Task)
			case pipeline.StepCompleted:
				fmt.Printf("step %d/%d done: %s\n", s.Index, len(plan.Steps), truncate(s.Answer, 100))
			case pipeline.StepFailed:
				fmt.Printf("step %d/%d failed: %s\n", s.Index, len(plan.Steps), s.Err)
			}
		}),
	)

	result, err := exec.Execute(ctx, plan)
	if err != nil {
		fmt.Printf("pipeline %s: %v\n", result.Outcome, err)
	} else {
		fmt.Printf("pipeline %s\n", result.Outcome)
	}
	for _, s := range result.Steps {
		if s.State != pipeline.StepCompleted {
			continue
		}
		if !s.Parsed.Empty() {
			printGeometry(s.Parsed)
		}
	}
}

func printAnswer(ans *chat.Answer) {
	fmt.Printf("[%s] %s\n", ans.Task, ans.Text)
	if !ans.Parsed.Empty() {
		printGeometry(ans.Parsed)
	}
	fmt.Printf("(context: %d turns)\n", ans.ContextTurns)
}

func printAskError(err error) {
	switch {
	case errors.Is(err, chat.ErrBusy):
		fmt.Println("error: a request is already running, try again shortly")
	case errors.Is(err, backend.ErrTimeout):
		fmt.Println("error: the backend timed out")
	default:
		fmt.Printf("error: %v\n", err)
	}
}

func printGeometry(p parser.Result) {
	for _, b := range p.Boxes {
		fmt.Printf("  box: [%.0f, %.0f, %.0f, %.0f]\n", b.X1, b.Y1, b.X2, b.Y2)
	}
	for _, pt := range p.Points {
		fmt.Printf("  point: (%.0f, %.0f)\n", pt.X, pt.Y)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// loadImage resolves an argument into an attachment. URLs are passed
// through for the backend to fetch; local files are read inline.
func loadImage(arg string) (backend.Image, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return backend.Image{URL: arg, MIME: mimeFromName(arg)}, nil
	}
	data, err := os.ReadFile(arg) // #nosec G304 - path typed by the operator
	if err != nil {
		return backend.Image{}, fmt.Errorf("reading image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return backend.Image{}, fmt.Errorf("%s is not an image (detected %s)", arg, mime)
	}
	return backend.Image{Data: data, MIME: mime}, nil
}

func mimeFromName(name string) string {
	switch {
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".webp"):
		return "image/webp"
	case strings.HasSuffix(name, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
