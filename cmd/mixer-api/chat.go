package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/mixer-agent/internal/app/conversation"
	"github.com/PabloGalante/mixer-agent/internal/domain"
	"github.com/PabloGalante/mixer-agent/internal/observability"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var chatID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the mixer from the terminal",
		Long: `Start an interactive conversation with the mixer assistant.

Each line is sent as a question; an empty line or "salir" ends the session.

Examples:
  mixer-api chat
  mixer-api chat --id 4b0c8f3e-2f5e-4a43-9b0e-0d7b6c1f7a11`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Logs go to stderr so answers stay readable.
			observability.Setup(cmd.ErrOrStderr(), opts.cfg.Log.Level)

			ctx := cmd.Context()
			a, err := buildApp(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Instrumentos: %s\n", strings.Join(a.registry.Names(), ", "))

			id := domain.ConversationID(chatID)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.EqualFold(line, "salir") {
					break
				}

				res, err := a.service.Chat(ctx, conversation.ChatInput{ConversationID: id, Question: line})
				if err != nil {
					if domain.IsValidation(err) {
						fmt.Fprintln(out, err)
						continue
					}
					return err
				}
				id = res.ConversationID
				fmt.Fprintln(out, res.Answer)
			}

			if id != "" {
				fmt.Fprintf(out, "chatId: %s\n", id)
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&chatID, "id", "", "resume an existing conversation")
	return cmd
}
