package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/usaccidents/accidents-api/internal/kaggle"
	"github.com/usaccidents/accidents-api/internal/logging"
)

type fetchOptions struct {
	dataset     string
	dest        string
	credentials string
	baseURL     string
}

func newFetchCommand() *cobra.Command {
	opts := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the accidents dataset from Kaggle",
		Long: `Download a Kaggle dataset archive and unzip it into a directory.

Credentials come from --credentials, then KAGGLE_USERNAME and KAGGLE_KEY,
then $KAGGLE_CONFIG_DIR/kaggle.json, then ~/.kaggle/kaggle.json. Any failure,
including missing or rejected credentials, exits non-zero.`,
		Example: `  # Fetch the default dataset into the current directory
  accidents-api fetch --credentials /run/secrets/kaggle

  # Fetch into /data
  accidents-api fetch --dest /data`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger(cmd.ErrOrStderr(), "text", slog.LevelInfo)

			creds, err := kaggle.LoadCredentials(opts.credentials)
			if err != nil {
				return err
			}

			client := kaggle.NewClient(creds, logger)
			if opts.baseURL != "" {
				client.BaseURL = opts.baseURL
			}

			files, err := client.Download(cmd.Context(), opts.dataset, opts.dest)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", opts.dataset, err)
			}
			for _, f := range files {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), f); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.dataset, "dataset", kaggle.DefaultDataset, "Kaggle dataset as owner/name")
	cmd.Flags().StringVar(&opts.dest, "dest", ".", "directory the archive is extracted into")
	cmd.Flags().StringVar(&opts.credentials, "credentials", "", "path to a kaggle.json credentials file")
	cmd.Flags().StringVar(&opts.baseURL, "kaggle-url", kaggle.DefaultBaseURL, "Kaggle API base URL")
	_ = cmd.Flags().MarkHidden("kaggle-url")

	return cmd
}
