package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pulse-metrics/insights-cli/internal/model"
)

var importsLimit int

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "List the ingestion audit log",
	Long:  "Shows one row per ingestion attempt, including duplicate and skip counts, so insert-if-absent drops stay visible.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		imports, err := st.ListImports(ctx, importsLimit)
		if err != nil {
			return eris.Wrap(err, "imports list")
		}

		if len(imports) == 0 {
			fmt.Fprintln(os.Stderr, "No imports recorded.")
			return nil
		}

		formatImportsList(os.Stdout, imports)
		return nil
	},
}

func init() {
	importsCmd.Flags().IntVar(&importsLimit, "limit", 50, "max number of imports to display")
	rootCmd.AddCommand(importsCmd)
}

// formatImportsList writes a tabular import audit log to out.
func formatImportsList(out io.Writer, imports []model.ImportRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tVARIANT\tROWS\tSAVED\tDUP\tSKIPPED\tFINISHED\tERROR")
	for _, rec := range imports {
		errMsg := "-"
		if rec.Error != "" {
			errMsg = truncate(rec.Error, 60)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			rec.SourceName,
			rec.Variant,
			rec.RowsIn,
			rec.PostsSaved,
			rec.PostsDuplicate,
			rec.RowsSkipped,
			rec.FinishedAt.Format("2006-01-02 15:04"),
			errMsg,
		)
	}
	_ = w.Flush()
}
