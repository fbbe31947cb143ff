package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/export"
	"github.com/sells-group/evidence-cli/internal/findings"
	"github.com/sells-group/evidence-cli/internal/model"
)

var (
	evalFindingsOut string
	evalJSON        bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate FILE...",
	Short: "Evaluate one or more documents and print the result",
	Long:  "Queues the files as one batch, waits for it to finish and prints the synthesis, or the detailed evaluation for a single file.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		docs, err := localDocuments(args, cfg.Document.MaxFiles)
		if err != nil {
			return err
		}

		env, err := initApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := awaitBatch(ctx, env, docs)
		if err != nil {
			return err
		}
		return reportResult(cmd.OutOrStdout(), res, evalJSON, evalFindingsOut)
	},
}

func awaitBatch(ctx context.Context, env *appEnv, docs []model.Document) (*model.BatchResult, error) {
	id := env.Queue.Enqueue(docs)
	zap.L().Info("waiting for batch", zap.String("batch_id", id), zap.Int("documents", len(docs)))

	res, err := env.Queue.Await(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "evaluate")
	}
	return res, nil
}

// localDocuments builds document handles for files on disk.
func localDocuments(paths []string, maxFiles int) ([]model.Document, error) {
	if maxFiles > 0 && len(paths) > maxFiles {
		return nil, eris.Errorf("at most %d files per batch, got %d", maxFiles, len(paths))
	}
	docs := make([]model.Document, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, eris.Wrapf(err, "document %s", p)
		}
		if info.IsDir() {
			return nil, eris.Errorf("document %s is a directory", p)
		}
		docs = append(docs, model.Document{ID: uuid.NewString(), Name: filepath.Base(p), Path: p})
	}
	return docs, nil
}

// reportResult prints the primary evaluation (or the whole result as JSON)
// and optionally exports its findings. A failed primary evaluation is an
// error after printing.
func reportResult(w io.Writer, res *model.BatchResult, asJSON bool, findingsOut string) error {
	for _, r := range res.Individual {
		if !r.Detailed.Success {
			zap.L().Warn("document evaluation failed",
				zap.String("document", r.Document.Name),
				zap.String("error", r.Detailed.Error),
			)
		}
	}

	primary := res.Primary()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return eris.Wrap(err, "encode result")
		}
	} else if primary.Success {
		fmt.Fprintln(w, primary.Text)
	}

	if !primary.Success {
		return eris.Errorf("evaluation failed: %s", primary.Error)
	}

	if findingsOut != "" {
		found := findings.Extract(primary.Text)
		if err := export.WriteFile(findingsOut, found); err != nil {
			return err
		}
		zap.L().Info("findings exported", zap.String("path", findingsOut), zap.Int("findings", len(found)))
	}
	return nil
}

func init() {
	evaluateCmd.Flags().StringVar(&evalFindingsOut, "findings", "", "export key findings to a .csv, .xlsx or .json file")
	evaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "print the full batch result as JSON")
	rootCmd.AddCommand(evaluateCmd)
}
