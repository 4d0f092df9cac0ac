package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/Chative-Support-Router/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the support router in the terminal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

		sessionID := chatSessionID
		if sessionID == "" {
			sessionID = orchestrator.NewSessionID()
		}
		return runREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.orch, sessionID)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "resume an existing session id")
	rootCmd.AddCommand(chatCmd)
}

type turnRunner interface {
	HandleMessage(ctx context.Context, sessionID string, text string) (contractx.TurnReply, error)
}

// runREPL reads one message per line until quit, exit or end of input. A
// failed turn is reported and the loop continues.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, conv turnRunner, sessionID string) error {
	fmt.Fprintln(out, "Customer Support AI Agent")
	fmt.Fprintln(out, "Type 'quit' to exit")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if lower := strings.ToLower(text); lower == "quit" || lower == "exit" {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		reply, err := conv.HandleMessage(ctx, sessionID, text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "Agent: sorry, something went wrong (%v)\n\n", err)
			continue
		}
		fmt.Fprintf(out, "Agent: %s\n\n", reply.Reply)
	}
}
