package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	showBusinessID string
	runsLimit      int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored menu for a business",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetMenu(ctx, showBusinessID)
		if err != nil {
			return err
		}
		if rec == nil {
			return eris.Errorf("no menu stored for %q", showBusinessID)
		}
		return printJSON(os.Stdout, rec)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List save attempts for a business, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, showBusinessID, runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN ID\tACCEPTED\tREASON\tSECTIONS\tITEMS\tQUALITY\tCREATED") //nolint:errcheck
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%t\t%s\t%d\t%d\t%.2f\t%s\n", //nolint:errcheck
				r.ID[:8], r.Accepted, dash(r.Reason), r.Sections, r.Items, r.Quality,
				r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Store maintenance",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the menu tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("store ready (%s)\n", cfg.Store.Driver)
		return st.Close()
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	for _, c := range []*cobra.Command{showCmd, runsCmd} {
		c.Flags().StringVar(&showBusinessID, "business-id", "", "business id (required)")
		_ = c.MarkFlagRequired("business-id")
	}
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "max runs to show")

	storeCmd.AddCommand(storeMigrateCmd)
	rootCmd.AddCommand(showCmd, runsCmd, storeCmd)
}
