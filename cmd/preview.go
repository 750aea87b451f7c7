package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/ingest"
)

var previewFile string

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Preview a prospect CSV/XLSX and propose a column mapping",
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := os.ReadFile(previewFile)
		if err != nil {
			return eris.Wrap(err, "preview: read file")
		}

		preview, err := ingest.PreviewFile(data)
		if err != nil {
			return err
		}

		out := struct {
			*ingest.Preview
			ProposedMapping ingest.Mapping `json:"proposed_mapping"`
		}{preview, ingest.ProposeMapping(preview.Headers)}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewFile, "file", "", "path to CSV or XLSX file (required)")
	_ = previewCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(previewCmd)
}
