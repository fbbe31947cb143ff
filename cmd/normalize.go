package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/citation"
	"github.com/sells-group/evidence-cli/internal/document"
)

var normalizeIDs []string

var normalizeCmd = &cobra.Command{
	Use:   "normalize [FILE|-]",
	Short: "Repair DOI citation links in text",
	Long:  "Rewrites identifier mentions as canonical markdown links. Without --id, the DOIs detected in the text are used.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		return runNormalize(cmd.OutOrStdout(), newNormalizer(cfg), text, normalizeIDs)
	},
}

func runNormalize(w io.Writer, n *citation.Normalizer, text string, ids []string) error {
	if len(ids) == 0 {
		ids = document.ExtractDOIs(text)
	}
	_, err := fmt.Fprint(w, n.Normalize(text, ids))
	return err
}

func init() {
	normalizeCmd.Flags().StringSliceVar(&normalizeIDs, "id", nil, "known identifier (repeatable)")
	rootCmd.AddCommand(normalizeCmd)
}
