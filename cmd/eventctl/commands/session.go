package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mhismail3/tron-sub003/internal/reconstruct"
	"github.com/mhismail3/tron-sub003/internal/store"
	"github.com/mhismail3/tron-sub003/pkg/types"
)

var (
	sessionWorkspace string
	sessionModel     string
	sessionProvider  string
	appendTurn       int
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create, append to, and reconstruct sessions directly against the event store",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new session (appends the session.start root event)",
	RunE:  runSessionCreate,
}

var sessionAppendCmd = &cobra.Command{
	Use:   "append <sessionId> <text>",
	Short: "Append a message.user event to a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionAppend,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <sessionId>",
	Short: "Reconstruct and print a session's projected messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

func init() {
	sessionCreateCmd.Flags().StringVar(&sessionWorkspace, "workspace", "", "Workspace path (required)")
	sessionCreateCmd.Flags().StringVar(&sessionModel, "model", "claude-sonnet-4-20250514", "Initial model id")
	sessionCreateCmd.Flags().StringVar(&sessionProvider, "provider", "anthropic", "Initial provider id")
	_ = sessionCreateCmd.MarkFlagRequired("workspace")

	sessionAppendCmd.Flags().IntVar(&appendTurn, "turn", 1, "Turn number this message belongs to")

	sessionCmd.AddCommand(sessionCreateCmd, sessionAppendCmd, sessionShowCmd)
}

func openStore(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, dbPath)
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	s, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer s.Close()

	sess, root, err := s.CreateSession(ctx, store.CreateSessionParams{
		WorkspacePath:    sessionWorkspace,
		WorkingDirectory: sessionWorkspace,
		Model:            sessionModel,
		Provider:         sessionProvider,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	fmt.Printf("session %s created (root event %s)\n", sess.ID, root.ID)
	return nil
}

func runSessionAppend(cmd *cobra.Command, args []string) error {
	sessionID, text := args[0], args[1]

	ctx := context.Background()
	s, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer s.Close()

	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	payload := types.MessageUserPayload{
		Content: []types.ContentBlock{{Type: "text", Text: text}},
		Turn:    appendTurn,
	}

	ev, err := s.Append(ctx, store.AppendParams{
		SessionID: sessionID,
		Type:      types.EventMessageUser,
		Payload:   payload,
		ParentID:  sess.HeadEventID,
		Turn:      &appendTurn,
	})
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	fmt.Printf("appended event %s (sequence %d)\n", ev.ID, ev.Sequence)
	return nil
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	ctx := context.Background()
	s, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer s.Close()

	result, err := reconstruct.Reconstruct(ctx, s, sessionID)
	if err != nil {
		return fmt.Errorf("reconstruct session: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
