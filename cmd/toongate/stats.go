package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/toongate/pkg/ledger"
	"github.com/pario-ai/toongate/pkg/models"
)

func newStatsCmd(configPath *string) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show token savings recorded in the conversion ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceTime, err := parseSince(since)
			if err != nil {
				return err
			}

			l, cleanup, err := openLedger(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			rows, err := l.Summary(context.Background(), sinceTime)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No conversions recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PATH\tCONVERSIONS\tCACHE HITS\tORIGINAL\tCONVERTED\tSAVED\tCOST SAVED")
			var saved int64
			var cost float64
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t$%.4f\n",
					r.Path, r.Conversions, r.CacheHits, r.OriginalTokens, r.ConvertedTokens, r.TokensSaved, r.CostSaved)
				saved += r.TokensSaved
				cost += r.CostSaved
			}
			fmt.Fprintf(w, "TOTAL\t\t\t\t\t%d\t$%.4f\n", saved, cost)
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD, default: start of month)")
	cmd.AddCommand(newStatsRecentCmd(configPath), newStatsCleanupCmd(configPath))
	return cmd
}

func newStatsRecentCmd(configPath *string) *cobra.Command {
	var (
		path       string
		clientType string
		requestID  string
		since      string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent conversions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := models.LedgerQuery{
				Path:       path,
				ClientType: models.ClientType(clientType),
				RequestID:  requestID,
				Limit:      limit,
			}
			if since != "" {
				t, err := parseSince(since)
				if err != nil {
					return err
				}
				q.Since = t
			}

			l, cleanup, err := openLedger(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			recs, err := l.Query(context.Background(), q)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("No conversions found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "REQUEST ID\tMETHOD\tPATH\tCLIENT\tCACHED\tTOKENS\tSAVED\tLATENCY\tTIME")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d->%d\t%d%%\t%dms\t%s\n",
					r.RequestID, r.Method, r.Path, r.ClientType, r.CacheHit,
					r.OriginalTokens, r.ConvertedTokens, r.Percentage, r.LatencyMs,
					r.CreatedAt.Format("2006-01-02T15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "filter by request path")
	cmd.Flags().StringVar(&clientType, "client-type", "", "filter by client type (LLM or regular)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "filter by request ID")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max records to return")
	return cmd
}

func newStatsCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete ledger records older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openLedger(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d ledger records.\n", deleted)
			return nil
		},
	}
}

// openLedger opens the configured ledger database whether or not the proxy
// records into it.
func openLedger(configPath string) (*ledger.Ledger, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	l, err := ledger.New(cfg.Ledger)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func parseSince(s string) (time.Time, error) {
	if s == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
	}
	return t, nil
}
