package cmds

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/blockchat/pkg/blocks/serde"
	"github.com/go-go-golems/blockchat/pkg/config"
	"github.com/go-go-golems/blockchat/pkg/conversation"
)

type historyDump struct {
	Session string                 `json:"session"`
	Turns   []*conversation.Turn   `json:"turns"`
	Reduced []conversation.Message `json:"reduced"`
	Pending []string               `json:"pending,omitempty"`
}

func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Dump the stored turns of a session as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			if sessionID == "" {
				return errors.New("--session is required")
			}

			settings, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			st, err := settings.OpenStore(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "open message store")
			}
			defer func() {
				_ = st.Close()
			}()

			turns, err := st.ListTurns(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			dump := historyDump{
				Session: sessionID,
				Turns:   turns,
				Reduced: conversation.Reduce(turns),
			}
			for _, p := range conversation.PendingInteractive(turns) {
				dump.Pending = append(dump.Pending, p.BlockID())
			}
			out, err := serde.ToYAML(dump)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().String("session", "", "Session id")
	cmd.Flags().String("store", config.StoreMemory, "Message store (memory, sqlite, redis)")
	cmd.Flags().String("sqlite-path", "blockchat.db", "SQLite database file")
	cmd.Flags().String("redis-addr", "localhost:6379", "Redis address")
	cmd.PreRunE = bindFlags(map[string]string{
		"store.backend":     "store",
		"store.sqlite-path": "sqlite-path",
		"store.redis-addr":  "redis-addr",
	})
	return cmd
}
