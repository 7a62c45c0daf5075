package chat

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/blockchat/pkg/client"
)

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a blockchat server in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			style, _ := cmd.Flags().GetString("style")
			noHistory, _ := cmd.Flags().GetBool("no-history")
			if url == "" {
				return errors.New("--url is required")
			}

			ctx := cmd.Context()
			wsc, err := client.Dial(ctx, url)
			if err != nil {
				return err
			}
			defer func() {
				_ = wsc.Close()
			}()
			session := client.NewSession(wsc)

			if !noHistory {
				historyURL, err := client.HistoryURL(url)
				if err != nil {
					return err
				}
				turns, err := client.FetchHistory(ctx, nil, historyURL)
				if err != nil {
					return err
				}
				session.LoadHistory(turns)
				log.Debug().Int("turns", len(turns)).Msg("loaded session history")
			}

			p := tea.NewProgram(newModel(ctx, session, style), tea.WithAltScreen())
			go func() {
				err := wsc.Run(ctx, session)
				p.Send(disconnectedMsg{err: err})
			}()

			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().String("url", "ws://localhost:8080/sessions/default/ws", "Channel url of the session")
	cmd.Flags().String("style", "dark", "Markdown style (dark, light, notty)")
	cmd.Flags().Bool("no-history", false, "Do not load the stored turns of the session")
	return cmd
}
