package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/ingest"
	"github.com/sells-group/prospect-cli/internal/pipeline"
)

var (
	uploadFile      string
	uploadMapping   string
	uploadBatchSize int
	uploadStartRow  int
	uploadMaxRows   int
	uploadClientID  string
	uploadUserID    string
	uploadDryRun    bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Run the dispatch pipeline on a prospect file",
	Long: `Parses a prospect CSV/XLSX, creates one processing record per valid
row, and dispatches the rows to the research webhook in sequential
batches.

Examples:
  # Auto-map columns and process the whole file
  prospect-cli upload --file prospects.csv

  # Explicit mapping, rows 100-199 only, batches of 25
  prospect-cli upload --file prospects.csv \
    --mapping '{"first_name":"First","last_name":"Last","company":"Employer","title":"Role","email":"Work Email"}' \
    --start-row 100 --max-rows 100 --batch-size 25`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		data, err := os.ReadFile(uploadFile)
		if err != nil {
			return eris.Wrap(err, "upload: read file")
		}

		mapping, err := resolveMapping(data)
		if err != nil {
			return err
		}

		identities, skipped, err := ingest.ParseRows(data, mapping, ingest.RowRange{
			Start:   uploadStartRow,
			MaxRows: uploadMaxRows,
		})
		if err != nil {
			return err
		}
		zap.L().Info("parsed prospect file",
			zap.Int("valid_rows", len(identities)),
			zap.Int("skipped_rows", skipped),
		)

		if uploadDryRun {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(identities)
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		up, err := env.Pipeline.RunUpload(ctx, pipeline.UploadParams{
			FileName:    filepath.Base(uploadFile),
			Identities:  identities,
			SkippedRows: skipped,
			BatchSize:   uploadBatchSize,
			ClientID:    uploadClientID,
			UserID:      uploadUserID,
		})
		if err != nil {
			return err
		}

		zap.L().Info("upload finished",
			zap.String("upload_id", up.ID),
			zap.String("status", string(up.Status)),
			zap.Int("processed_rows", up.ProcessedRows),
			zap.Int("total_rows", up.TotalRows),
			zap.Int("skipped_rows", up.SkippedRows),
		)
		return nil
	},
}

// resolveMapping uses the --mapping JSON when given, otherwise the
// heuristic proposal from the file's headers.
func resolveMapping(data []byte) (ingest.Mapping, error) {
	if uploadMapping != "" {
		var m ingest.Mapping
		if err := json.Unmarshal([]byte(uploadMapping), &m); err != nil {
			return ingest.Mapping{}, eris.Wrap(err, "upload: parse --mapping")
		}
		return m, nil
	}

	preview, err := ingest.PreviewFile(data)
	if err != nil {
		return ingest.Mapping{}, err
	}
	return ingest.ProposeMapping(preview.Headers), nil
}

func init() {
	uploadCmd.Flags().StringVar(&uploadFile, "file", "", "path to CSV or XLSX file (required)")
	uploadCmd.Flags().StringVar(&uploadMapping, "mapping", "", "column mapping JSON (default: auto-proposed from headers)")
	uploadCmd.Flags().IntVar(&uploadBatchSize, "batch-size", 0, "records per webhook call (default from config)")
	uploadCmd.Flags().IntVar(&uploadStartRow, "start-row", 0, "first data row to process (0-based)")
	uploadCmd.Flags().IntVar(&uploadMaxRows, "max-rows", 0, "max rows to process (0 = all)")
	uploadCmd.Flags().StringVar(&uploadClientID, "client-id", "default", "owning tenant id")
	uploadCmd.Flags().StringVar(&uploadUserID, "user-id", "default", "owning user id")
	uploadCmd.Flags().BoolVar(&uploadDryRun, "dry-run", false, "parse and print rows, skip pipeline")
	_ = uploadCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(uploadCmd)
}
