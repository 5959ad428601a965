package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/chanbot/internal/backup"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write every channel record as JSONL",
	GroupID: "backup",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		var w io.Writer = os.Stdout
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := adminClient.Export(cmd.Context(), w); err != nil {
			return fmt.Errorf("exporting: %w", err)
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:     "restore [file]",
	Short:   "Import channel records from a JSONL export",
	Long: `Import channel records from a JSONL export. Records whose id already
exists are skipped. Reads stdin when no file is given, or the configured S3
backup object when --s3-bucket is set.`,
	GroupID: "backup",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, _ := cmd.Flags().GetString("s3-bucket")

		var r io.Reader = os.Stdin
		switch {
		case bucket != "":
			if len(args) > 0 {
				return fmt.Errorf("a file and --s3-bucket are mutually exclusive")
			}
			key, _ := cmd.Flags().GetString("s3-key")
			region, _ := cmd.Flags().GetString("s3-region")
			endpoint, _ := cmd.Flags().GetString("s3-endpoint")
			dest, err := backup.NewS3Destination(cmd.Context(), backup.S3Options{
				Bucket:   bucket,
				Key:      key,
				Region:   region,
				Endpoint: endpoint,
			})
			if err != nil {
				return err
			}
			data, err := dest.Fetch(cmd.Context())
			if err != nil {
				return err
			}
			r = bytes.NewReader(data)
		case len(args) == 1 && args[0] != "-":
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		resp, err := adminClient.Import(cmd.Context(), r)
		if err != nil {
			return fmt.Errorf("restoring: %w", err)
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		fmt.Printf("Inserted %d, skipped %d existing\n", resp.Inserted, resp.Skipped)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")

	restoreCmd.Flags().String("s3-bucket", os.Getenv("CHANBOT_BACKUP_S3_BUCKET"), "restore from this S3 bucket")
	restoreCmd.Flags().String("s3-key", envOr("CHANBOT_BACKUP_S3_KEY", "chanbot/channels.jsonl"), "S3 object key")
	restoreCmd.Flags().String("s3-region", envOr("CHANBOT_BACKUP_S3_REGION", "us-east-1"), "S3 region")
	restoreCmd.Flags().String("s3-endpoint", os.Getenv("CHANBOT_BACKUP_S3_ENDPOINT"), "custom S3 endpoint (MinIO)")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
