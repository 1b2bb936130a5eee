package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/strikewatch/internal/display"
	"github.com/rewired-gh/strikewatch/internal/feed"
	"github.com/rewired-gh/strikewatch/internal/models"
	"github.com/rewired-gh/strikewatch/internal/monitor"
	"github.com/rewired-gh/strikewatch/internal/storage"
)

type viewFlags struct {
	sort   string
	desc   bool
	filter string
}

func (f *viewFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sort, "sort", "", "sort by field (strike, sumLtpVol, diffLtpVol, ..., vwapDiff)")
	cmd.Flags().BoolVar(&f.desc, "desc", false, "sort descending")
	cmd.Flags().StringVar(&f.filter, "filter", "", "only show strikes containing this text")
}

func (f *viewFlags) apply(v monitor.View) (monitor.View, error) {
	if f.sort != "" {
		field := models.Field(f.sort)
		if !field.Valid() {
			return v, fmt.Errorf("unknown sort field %q", f.sort)
		}
		v = v.Resorted(field, !f.desc)
	}
	if f.filter != "" {
		v = v.Refiltered(f.filter)
	}
	return v, nil
}

func analyzeCmd() *cobra.Command {
	var flags viewFlags
	cmd := &cobra.Command{
		Use:   "analyze <snapshot.json>",
		Short: "Analyze a snapshot file once and print the strike table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := feed.LoadFile(args[0])
			if err != nil {
				return err
			}
			return printAnalysis(cmd.OutOrStdout(), args[0], rows, &flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func replayCmd() *cobra.Command {
	var flags viewFlags
	var limit int
	cmd := &cobra.Command{
		Use:   "replay [cycle-id]",
		Short: "Re-analyze a stored snapshot, or list recent cycles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.New(cfg.Storage.MaxCycles, cfg.Storage.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer store.Close()

			if len(args) == 0 {
				cycles, err := store.GetRecentCycles(limit)
				if err != nil {
					return err
				}
				printCycles(cmd.OutOrStdout(), cycles)
				return nil
			}

			rows, err := store.LoadRawRows(args[0])
			if err != nil {
				return err
			}
			return printAnalysis(cmd.OutOrStdout(), args[0], rows, &flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "number of cycles to list")
	return cmd
}

// printAnalysis runs rows through a fresh controller and prints the result.
// A signal is reported in the output, never as an exit status.
func printAnalysis(w io.Writer, cycleID string, rows []models.InstrumentRow, flags *viewFlags) error {
	controller := monitor.NewController(cfg.Policy(), cfg.SignalRule())
	v, err := flags.apply(controller.OnSnapshot(cycleID, rows))
	if err != nil {
		return err
	}
	printTable(w, v)
	return nil
}

func printTable(w io.Writer, v monitor.View) {
	flagged := make(map[string]bool, len(v.Flagged))
	for _, s := range v.Flagged {
		flagged[s] = true
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{"", string(models.FieldStrike)}
	for _, f := range models.MetricFields {
		header = append(header, string(f))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for _, row := range v.Rows {
		mark := ""
		if flagged[row.Strike] {
			mark = "*"
		}
		cells := []string{mark, display.Field(row, models.FieldStrike)}
		for _, f := range models.MetricFields {
			cells = append(cells, display.Field(row, f))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d of %d strikes shown", len(v.Rows), v.Total)
	if v.Filter != "" {
		fmt.Fprintf(w, " (filter %q)", v.Filter)
	}
	fmt.Fprintln(w)
	if v.Signal {
		fmt.Fprintf(w, "SIGNAL: %s\n", strings.Join(v.Flagged, ", "))
	} else {
		fmt.Fprintln(w, "No signal")
	}
}

func printCycles(w io.Writer, cycles []models.Cycle) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFETCHED\tROWS\tSTRIKES\tSIGNAL\tTOOK")
	for _, c := range cycles {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\t%v\n",
			c.ID, c.FetchedAt.Format("2006-01-02 15:04:05"), c.Rows, c.Strikes, c.Signal, c.Duration)
	}
	tw.Flush()
}
