package cmds

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/blockchat/pkg/blocks/serde"
	"github.com/go-go-golems/blockchat/pkg/parse"
)

type parseReport struct {
	Stage    parse.Stage `json:"stage"`
	Error    string      `json:"error,omitempty"`
	Envelope any         `json:"envelope"`
}

func NewParseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse raw generator output into a block envelope",
		Long: "Runs the response parser on a file, or stdin when no file is given, " +
			"and prints the resulting envelope as YAML along with the stage that produced it.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() {
					_ = f.Close()
				}()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return errors.Wrap(err, "read generator output")
			}

			p := parse.NewParser(parse.Options{
				PreviewLength: viper.GetInt("parser.preview-length"),
				MaxInputBytes: viper.GetInt("parser.max-input-bytes"),
			})
			res := p.ParseWithResult(string(raw))

			report := parseReport{Stage: res.Stage, Envelope: res.Envelope}
			if res.Err != nil {
				report.Error = res.Err.Error()
			}
			out, err := serde.ToYAML(report)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	return cmd
}
