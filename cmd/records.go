package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

var (
	recordsStatus   string
	recordsUploadID string
	recordsClientID string
	recordsLimit    int
)

var recordsCmd = &cobra.Command{
	Use:   "records [record-id]",
	Short: "List prospect records, or show one by id",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if len(args) == 1 {
			rec, err := st.GetRecord(ctx, args[0])
			if err != nil {
				return err
			}
			return enc.Encode(rec)
		}

		records, err := st.ListRecords(ctx, store.RecordFilter{
			Status:   model.RecordStatus(recordsStatus),
			UploadID: recordsUploadID,
			ClientID: recordsClientID,
			Limit:    recordsLimit,
		})
		if err != nil {
			return err
		}

		return enc.Encode(records)
	},
}

func init() {
	recordsCmd.Flags().StringVar(&recordsStatus, "status", "", "filter by status (processing|completed|failed)")
	recordsCmd.Flags().StringVar(&recordsUploadID, "upload", "", "filter by upload id")
	recordsCmd.Flags().StringVar(&recordsClientID, "client-id", "", "filter by tenant id")
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 100, "max records to list")
	rootCmd.AddCommand(recordsCmd)
}
