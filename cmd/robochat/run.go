package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/robochat-dev/robochat/pkg/pipeline"
	"github.com/robochat-dev/robochat/pkg/session"
)

func newRunCmd() *cobra.Command {
	var (
		imagePath string
		saveID    string
		planOnly  bool
	)
	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Decompose a goal into typed steps and execute them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			goal := strings.Join(args, " ")

			plan := pipeline.NewPlan(goal)
			fmt.Printf("plan %s (%d steps):\n", plan.ID, len(plan.Steps))
			for _, s := range plan.Steps {
				fmt.Printf("  %d. [%s] %s\n", s.Index, s.Task, s.Prompt)
			}
			if planOnly {
				return nil
			}

			b, err := newBackend(ctx)
			if err != nil {
				return err
			}
			stopMetrics := startMetrics()
			defer stopMetrics()

			conv := newConversation(b, "")
			if imagePath != "" {
				img, err := loadImage(imagePath)
				if err != nil {
					return err
				}
				conv.SetImage(img)
			}

			exec := pipeline.NewExecutor(conv,
				pipeline.WithStepTimeout(cfg.Backend.Timeout.Std()),
				pipeline.WithProgress(func(s pipeline.Step) {
					if s.State == pipeline.StepCompleted {
						fmt.Printf("step %d done: %s\n", s.Index, truncate(s.Answer, 100))
					}
				}),
			)
			result, execErr := exec.Execute(ctx, plan)
			fmt.Printf("outcome: %s\n", result.Outcome)
			for _, s := range result.Steps {
				if s.State == pipeline.StepCompleted && !s.Parsed.Empty() {
					printGeometry(s.Parsed)
				}
			}

			if saveID != "" {
				store, err := newStore(ctx)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				if err := saveRunResult(ctx, store, result, saveID); err != nil {
					return err
				}
				fmt.Printf("saved run %s\n", saveID)
			}
			return execErr
		},
	}
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "scene image (path or URL)")
	cmd.Flags().StringVar(&saveID, "save", "", "save the run result under this session ID")
	cmd.Flags().BoolVar(&planOnly, "plan", false, "print the plan without executing")
	return cmd
}

// saveRunResult persists the run as a conversation record: one user
// and one assistant message per completed step.
func saveRunResult(ctx context.Context, store session.Store, result *pipeline.Result, id string) error {
	now := time.Now().UTC()
	rec := &session.Record{
		SessionID: id,
		Metadata:  session.Metadata{CreatedAt: now, UpdatedAt: now},
	}
	for _, s := range result.Steps {
		if s.State != pipeline.StepCompleted {
			continue
		}
		rec.Messages = append(rec.Messages,
			session.Message{
				Role:      session.RoleUser,
				Content:   s.Prompt,
				Task:      s.Task.String(),
				Timestamp: s.StartedAt,
			},
			session.Message{
				Role:      session.RoleAssistant,
				Content:   s.Answer,
				Task:      s.Task.String(),
				Timestamp: s.FinishedAt,
			},
		)
	}
	return store.Save(ctx, rec)
}
