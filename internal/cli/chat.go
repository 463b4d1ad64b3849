package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ashureev/mock-interview/internal/chat"
	"github.com/ashureev/mock-interview/internal/config"
	"github.com/ashureev/mock-interview/internal/domain"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	interviewerLabel = color.New(color.FgCyan, color.Bold)
	candidateLabel   = color.New(color.FgGreen, color.Bold)
	noticeColor      = color.New(color.FgYellow)
	errorColor       = color.New(color.FgRed)
)

func newChatCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	var sceneID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive interview",
		Long: `Start an interactive interview in the terminal. Plain lines are sent
as answers; lines starting with / are commands (type /help).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), cmd, cfg, opts, sceneID)
			if err != nil {
				return err
			}
			defer ws.Close()

			if sceneID != "" {
				if err := ws.orch.SelectScene(sceneID); err != nil {
					return err
				}
			}

			r := &repl{
				orch:    ws.orch,
				catalog: ws.catalog,
				in:      bufio.NewScanner(cmd.InOrStdin()),
				out:     cmd.OutOrStdout(),
			}
			return r.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&sceneID, "scene", "", "Interview scene to use (see: interview scenes)")

	return cmd
}

type sceneLister interface {
	Label(id string) string
	List() []domain.InterviewScene
	DefaultSceneID() string
}

// repl is the interactive chat loop.
type repl struct {
	orch    *chat.Orchestrator
	catalog sceneLister
	in      *bufio.Scanner
	out     io.Writer
}

func (r *repl) run(ctx context.Context) error {
	r.showWelcome()

	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			r.send(ctx, line)
			continue
		}

		fields := strings.Fields(line)
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}
		switch fields[0] {
		case "/quit", "/exit":
			return nil
		case "/help":
			r.showHelp()
		case "/new":
			sess := r.orch.NewChat()
			noticeColor.Fprintf(r.out, "Started %s\n", sess.Title)
			r.printTranscript(sess)
		case "/scene":
			r.selectScene(arg)
		case "/sessions":
			state := r.orch.State()
			printSessions(r.out, state.Sessions, state.ActiveSessionID)
		case "/switch":
			r.switchSession(arg)
		case "/delete":
			r.deleteSession(arg)
		default:
			errorColor.Fprintf(r.out, "Unknown command %s (type /help)\n", fields[0])
		}
	}
}

func (r *repl) showWelcome() {
	sceneID := r.orch.SceneID()
	noticeColor.Fprintf(r.out, "Mock interview - %s\n", r.catalog.Label(sceneID))
	fmt.Fprintln(r.out, "Type your answer and press Enter. /help lists commands.")
	fmt.Fprintln(r.out)

	state := r.orch.State()
	if sess, ok := r.orch.Session(state.ActiveSessionID); ok {
		noticeColor.Fprintf(r.out, "Resuming %s\n", sess.Title)
		r.printTranscript(sess)
	}
}

func (r *repl) showHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  /new            start a new session in the current scene")
	fmt.Fprintln(r.out, "  /scene [id]     list scenes, or switch the current session to scene id")
	fmt.Fprintln(r.out, "  /sessions       list sessions")
	fmt.Fprintln(r.out, "  /switch <n|id>  make a session active")
	fmt.Fprintln(r.out, "  /delete <n|id>  delete a session")
	fmt.Fprintln(r.out, "  /quit           leave")
}

func (r *repl) send(ctx context.Context, content string) {
	res, err := r.orch.SendMessage(ctx, content)
	var replyErr *chat.ReplyError
	switch {
	case errors.As(err, &replyErr):
		errorColor.Fprintf(r.out, "The interviewer did not answer: %v\n", replyErr.Err)
	case err != nil:
		errorColor.Fprintf(r.out, "Send failed: %v\n", err)
	case res.Discarded:
		noticeColor.Fprintln(r.out, "The session was deleted before the reply arrived")
	case res.Reply != nil:
		r.printMessage(*res.Reply)
	}
}

func (r *repl) selectScene(id string) {
	if id == "" {
		printScenes(r.out, r.catalog.List(), r.orch.SceneID())
		return
	}
	if err := r.orch.SelectScene(id); err != nil {
		errorColor.Fprintf(r.out, "%v\n", err)
		return
	}
	noticeColor.Fprintf(r.out, "Scene set to %s\n", r.catalog.Label(id))
}

func (r *repl) switchSession(ref string) {
	id, ok := r.resolveSession(ref)
	if !ok {
		return
	}
	if err := r.orch.SelectSession(id); err != nil {
		errorColor.Fprintf(r.out, "%v\n", err)
		return
	}
	if sess, ok := r.orch.Session(id); ok {
		noticeColor.Fprintf(r.out, "Switched to %s\n", sess.Title)
		r.printTranscript(sess)
	}
}

func (r *repl) deleteSession(ref string) {
	id, ok := r.resolveSession(ref)
	if !ok {
		return
	}
	if err := r.orch.DeleteSession(id); err != nil {
		errorColor.Fprintf(r.out, "%v\n", err)
		return
	}
	noticeColor.Fprintf(r.out, "Deleted %s\n", id)
}

// resolveSession accepts a 1-based list position or a session id.
func (r *repl) resolveSession(ref string) (string, bool) {
	if ref == "" {
		errorColor.Fprintln(r.out, "Missing session number or id")
		return "", false
	}
	if n, err := strconv.Atoi(ref); err == nil {
		sessions := r.orch.Sessions()
		if n < 1 || n > len(sessions) {
			errorColor.Fprintf(r.out, "No session #%d\n", n)
			return "", false
		}
		return sessions[n-1].ID, true
	}
	return ref, true
}

func (r *repl) printTranscript(sess domain.ChatSession) {
	for _, msg := range sess.Messages {
		r.printMessage(msg)
	}
}

func (r *repl) printMessage(msg domain.Message) {
	switch msg.Role {
	case domain.RoleUser:
		candidateLabel.Fprint(r.out, "you")
	default:
		interviewerLabel.Fprint(r.out, "interviewer")
	}
	fmt.Fprintf(r.out, ": %s\n", msg.Content)
}
