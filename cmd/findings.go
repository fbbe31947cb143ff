package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/evidence-cli/internal/export"
	"github.com/sells-group/evidence-cli/internal/findings"
)

var (
	findingsFormat string
	findingsOut    string
)

var findingsCmd = &cobra.Command{
	Use:   "findings [FILE|-]",
	Short: "Extract key findings from evaluation text",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		return runFindings(cmd.OutOrStdout(), text, findingsFormat, findingsOut)
	},
}

// runFindings writes the findings in text to outPath, or to w when outPath
// is empty. The format flag wins over the output file extension.
func runFindings(w io.Writer, text, format, outPath string) error {
	if format == "" {
		format = string(export.FormatJSON)
		if outPath != "" {
			format = filepath.Ext(outPath)
		}
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}

	found := findings.Extract(text)
	if outPath == "" {
		return export.Write(w, f, found)
	}

	file, err := os.Create(outPath)
	if err != nil {
		return eris.Wrapf(err, "create %s", outPath)
	}
	if err := export.Write(file, f, found); err != nil {
		_ = file.Close()
		return err
	}
	return eris.Wrapf(file.Close(), "close %s", outPath)
}

// readInput reads the named file, or stdin for no argument or "-".
func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", eris.Wrap(err, "read stdin")
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", eris.Wrapf(err, "read %s", args[0])
	}
	return string(data), nil
}

func init() {
	findingsCmd.Flags().StringVar(&findingsFormat, "format", "", "output format: json, csv or xlsx (default from --out extension, else json)")
	findingsCmd.Flags().StringVar(&findingsOut, "out", "", "output file (default stdout)")
	rootCmd.AddCommand(findingsCmd)
}
