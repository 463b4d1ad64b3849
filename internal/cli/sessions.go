package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/ashureev/mock-interview/internal/config"
	"github.com/ashureev/mock-interview/internal/domain"
	"github.com/ashureev/mock-interview/internal/scene"
	"github.com/spf13/cobra"
)

const listTimeLayout = "2006-01-02 15:04"

func newScenesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scenes",
		Short: "List the interview scenes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := scene.Load(opts.scenesPath)
			if err != nil {
				return err
			}
			printScenes(cmd.OutOrStdout(), catalog.List(), catalog.DefaultSceneID())
			return nil
		},
	}
}

func newSessionsCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored interview sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), cmd, cfg, opts, "")
			if err != nil {
				return err
			}
			defer ws.Close()

			state := ws.orch.State()
			printSessions(cmd.OutOrStdout(), state.Sessions, state.ActiveSessionID)
			return nil
		},
	}
}

func newClearCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored interview session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), cmd, cfg, opts, "")
			if err != nil {
				return err
			}
			defer ws.Close()

			n := len(ws.orch.Sessions())
			ws.orch.ClearAll()
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d session(s)\n", n)
			return nil
		},
	}
}

func printScenes(out io.Writer, scenes []domain.InterviewScene, defaultID string) {
	for _, sc := range scenes {
		marker := " "
		if sc.ID == defaultID {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-12s  %-24s  %s\n", marker, sc.ID, sc.Name, sc.Description)
	}
}

func printSessions(out io.Writer, sessions []domain.ChatSession, activeID string) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions yet; start one with: interview chat")
		return
	}
	for i, sess := range sessions {
		marker := " "
		if sess.ID == activeID {
			marker = "*"
		}
		updated := time.UnixMilli(sess.UpdatedAt).Format(listTimeLayout)
		fmt.Fprintf(out, "%s %2d  %-36s  %-12s  %3d msgs  %s  %s\n",
			marker, i+1, sess.ID, sess.SceneID, len(sess.Messages), updated, sess.Title)
	}
}
