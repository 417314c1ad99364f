package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/opinionated/internal/config"
	"github.com/roach88/opinionated/internal/osmio"
	"github.com/roach88/opinionated/internal/source"
)

// IDsOptions holds flags for the ids command.
type IDsOptions struct {
	*RootOptions
	Output string
}

// IDsResult lists the reference ids found in a stream.
type IDsResult struct {
	Input string   `json:"input"`
	Key   string   `json:"key"`
	IDs   []string `json:"ids"`
}

// NewIDsCommand creates the ids command.
func NewIDsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IDsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ids <input>",
		Short: "List the reference ids used in an entity stream",
		Long: `Scan an entity stream and list the distinct knowledge-base ids found under
the reference tag, one per line, sorted. Only the first ';'-separated element
of a value is used; values that are not a well-formed id are logged and
skipped. The list is the input for fetching labels.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIDs(opts, args[0], cmd)
		},
	}

	cmd.Flags().String("reference-key", config.Defaults().ReferenceKey, "tag holding the knowledge-base reference")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path (default stdout)")

	return cmd
}

func runIDs(opts *IDsOptions, input string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, cmd, "reference-key")
	if err != nil {
		return err
	}

	in, err := openInput(input, cmd.InOrStdin())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err.Error(), nil)
	}
	defer in.Close()

	ids, err := osmio.ScanReferences(osmio.NewReader(in).Unordered(), cfg.ReferenceKey, source.ValidQID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeReadFailed, err.Error(), nil)
	}
	formatter.VerboseLog("Found %d reference id(s) in %s", len(ids), input)

	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
		bw := bufio.NewWriter(f)
		for _, id := range ids {
			fmt.Fprintln(bw, id)
		}
		if err := bw.Flush(); err != nil {
			f.Close()
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
		if err := f.Close(); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err.Error(), nil)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(IDsResult{Input: input, Key: cfg.ReferenceKey, IDs: ids})
	}
	if opts.Output != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d id(s) to %s\n", len(ids), opts.Output)
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}
