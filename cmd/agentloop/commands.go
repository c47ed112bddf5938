package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xonecas/agentturn/internal/agent"
	"github.com/xonecas/agentturn/internal/core"
	"github.com/xonecas/agentturn/internal/session"
	"github.com/xonecas/agentturn/internal/store"
)

func buildCreateCmd(configPath, providerName *string) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new session, optionally sending it a first message",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, st, err := buildAgent(*configPath, *providerName)
			if err != nil {
				return err
			}
			defer closeStore(st)

			sess := a.CreateSession(agent.CreateOptions{ID: uuid.NewString()})
			fmt.Fprintf(cmd.OutOrStdout(), "Created session %s\n", sess.ID)

			if message == "" {
				return nil
			}
			return runTurn(cmd.Context(), cmd, sess, message)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send this message immediately after creating the session")
	return cmd
}

func buildSendCmd(configPath, providerName *string) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send a message to an existing session and stream the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" {
				return fmt.Errorf("--session is required")
			}
			a, st, err := buildAgent(*configPath, *providerName)
			if err != nil {
				return err
			}
			defer closeStore(st)

			sess, err := a.ResumeSession(cmd.Context(), sessionID, agent.ResumeOptions{})
			if err != nil {
				return fmt.Errorf("resume session: %w", err)
			}
			return runTurn(cmd.Context(), cmd, sess, args[0])
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to send to")
	return cmd
}

func buildResumeCmd(configPath, providerName *string) *cobra.Command {
	var leafID string
	var message string

	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a session from a specific point in its history and optionally send a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, st, err := buildAgent(*configPath, *providerName)
			if err != nil {
				return err
			}
			defer closeStore(st)

			sess, err := a.ResumeSession(cmd.Context(), args[0], agent.ResumeOptions{LeafID: leafID})
			if err != nil {
				return fmt.Errorf("resume session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resumed session %s (%d entries)\n", sess.ID, len(sess.Entries()))

			if message == "" {
				return nil
			}
			return runTurn(cmd.Context(), cmd, sess, message)
		},
	}
	cmd.Flags().StringVar(&leafID, "leaf", "", "resume from this entry id instead of the latest")
	cmd.Flags().StringVarP(&message, "message", "m", "", "send this message after resuming")
	return cmd
}

func buildSessionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List known session ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := buildAgent(*configPath, "")
			if err != nil {
				return err
			}
			defer closeStore(st)

			lister, ok := st.(store.Lister)
			if !ok {
				return fmt.Errorf("configured store cannot list sessions")
			}
			ids, err := lister.ListSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

// runTurn sends text to sess and streams the turn's events to cmd's
// stdout: assistant text as it's produced, and a one-line note per tool
// call/result. Grounded on the teacher's TUI event handlers in
// internal/tui, collapsed here to plain sequential writes since the CLI
// has no screen to redraw.
func runTurn(ctx context.Context, cmd *cobra.Command, sess *session.Session, text string) error {
	out := cmd.OutOrStdout()

	unsubDelta := sess.On(core.EventTextDelta, func(_ context.Context, ev session.Event) error {
		fmt.Fprint(out, ev.Delta)
		return nil
	})
	defer unsubDelta()

	unsubCall := sess.On(core.EventToolCall, func(_ context.Context, ev session.Event) error {
		fmt.Fprintf(out, "\n[tool] %s(%s)\n", ev.ToolName, string(ev.Args))
		return nil
	})
	defer unsubCall()

	unsubResult := sess.On(core.EventToolResult, func(_ context.Context, ev session.Event) error {
		fmt.Fprintf(out, "[result] %s\n", ev.Result)
		return nil
	})
	defer unsubResult()

	unsubErr := sess.On(session.EventError, func(_ context.Context, ev session.Event) error {
		fmt.Fprintf(out, "\n[error] %v\n", ev.Err)
		return nil
	})
	defer unsubErr()

	sess.Send(ctx, text, "")
	if err := sess.WaitForIdle(ctx); err != nil {
		return fmt.Errorf("turn failed: %w", err)
	}
	fmt.Fprintln(out)
	return nil
}

func closeStore(st store.Store) {
	type closer interface{ Close() error }
	if c, ok := st.(closer); ok {
		_ = c.Close()
	}
}
