package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/cobra"
	"github.com/usaccidents/accidents-api/accidentsdb"
	"github.com/usaccidents/accidents-api/internal/appconf"
	"github.com/usaccidents/accidents-api/internal/dataset"
	"github.com/usaccidents/accidents-api/internal/kaggle"
	"github.com/usaccidents/accidents-api/internal/logging"
)

var errVerificationFailed = errors.New("store does not match the CSV")

type convertOptions struct {
	csvPath     string
	storeDriver string
	storeDSN    string
	verify      bool
}

func newConvertCommand() *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Import the accidents CSV into a SQL store",
		Long: `Parse the accidents CSV and replace the contents of a SQL store with it.
A server started with the same --store-dsn loads the dataset from the store
instead of parsing the CSV again.`,
		Example: `  # Convert into a SQLite file and check the aggregations
  accidents-api convert --csv US_Accidents_March23.csv --store-dsn accidents.db --verify`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger(cmd.ErrOrStderr(), "text", slog.LevelInfo)
			return runConvert(cmd.Context(), opts, logger, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.csvPath, "csv", kaggle.DefaultFileName, "accidents CSV to import")
	cmd.Flags().StringVar(&opts.storeDriver, "store-driver", accidentsdb.DriverSQLite, "SQL store driver (sqlite|mysql)")
	cmd.Flags().StringVar(&opts.storeDSN, "store-dsn", "accidents.db", "SQL store DSN")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "compare store aggregations with the CSV after importing")

	return cmd
}

func runConvert(ctx context.Context, opts *convertOptions, logger *slog.Logger, out io.Writer) error {
	ds, err := dataset.ParseFile(opts.csvPath)
	if err != nil {
		return err
	}

	config := accidentsdb.NewConfig(opts.storeDriver, opts.storeDSN, appconf.Development, false)
	config.Logger = logger
	store, err := accidentsdb.NewClient(config)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(store, logger, "close_dataset_store")

	if err := store.ImportDataset(ctx, ds, opts.csvPath); err != nil {
		return err
	}
	fmt.Fprintf(out, "imported %d rows and %d columns into %s in %s\n",
		ds.Len(), len(ds.Columns()), opts.storeDriver, store.ImportRuntime())

	if !opts.verify {
		return nil
	}
	if err := verifyStore(ctx, store, ds); err != nil {
		return err
	}
	fmt.Fprintln(out, "verified: store aggregations match the CSV")
	return nil
}

// verifyStore checks that the SQL aggregations agree with the in-memory ones.
func verifyStore(ctx context.Context, store *accidentsdb.Client, ds *dataset.Dataset) error {
	var mismatches []error

	total, err := store.Total(ctx)
	if err != nil {
		return err
	}
	if total != ds.Len() {
		mismatches = append(mismatches, fmt.Errorf("total: store has %d rows, CSV has %d", total, ds.Len()))
	}

	if want, err := ds.CountByState(); err == nil {
		got, err := store.CountByState(ctx)
		if err != nil {
			return err
		}
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			mismatches = append(mismatches, fmt.Errorf("count_by_state (-csv +store):\n%s", diff))
		}
	}

	if want, err := ds.YearlyStats(); err == nil {
		got, err := store.YearlyStats(ctx)
		if err != nil {
			return err
		}
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			mismatches = append(mismatches, fmt.Errorf("yearly_stats (-csv +store):\n%s", diff))
		}
	}

	if len(mismatches) > 0 {
		return fmt.Errorf("%w: %w", errVerificationFailed, errors.Join(mismatches...))
	}
	return nil
}
