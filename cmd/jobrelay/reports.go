package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobrelay/internal/config"
	"github.com/amishk599/jobrelay/internal/dispatch"
	"github.com/amishk599/jobrelay/internal/model"
	"github.com/amishk599/jobrelay/internal/store"
)

var reportLimit int

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recently scanned messages",
	RunE:  runJobs,
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List notifications awaiting an operator decision",
	RunE:  runPending,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print ledger totals and the latest sends",
	RunE:  runStats,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete records older than the retention settings",
	RunE:  runCleanup,
}

func init() {
	jobsCmd.Flags().IntVarP(&reportLimit, "limit", "n", 20, "number of messages to list")
	pendingCmd.Flags().IntVarP(&reportLimit, "limit", "n", 20, "number of notifications to list")
	rootCmd.AddCommand(jobsCmd, pendingCmd, statsCmd, cleanupCmd)
}

// openReportStore opens the configured store for a one-shot report.
func openReportStore() (*config.Config, *store.SQLiteStore) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	return cfg, st
}

func runJobs(cmd *cobra.Command, args []string) error {
	_, st := openReportStore()
	defer st.Close()

	opps, err := st.ListRecent(context.Background(), reportLimit)
	if err != nil {
		return err
	}
	printOpportunities(opps)
	return nil
}

func printOpportunities(opps []model.Opportunity) {
	fmt.Printf("%-16s %-20s %-6s %-8s %s\n", "Scanned", "Channel", "Score", "Contacts", "Excerpt")
	fmt.Println(strings.Repeat("─", 90))
	for _, o := range opps {
		fmt.Printf("%-16s %-20s %-6.2f %-8d %s\n",
			o.CreatedAt.Local().Format("2006-01-02 15:04"),
			truncateCell(o.SourceChannel, 20),
			o.Score,
			len(o.Contacts.Sendable()),
			oneLine(dispatch.Excerpt(o.Text, 40)),
		)
	}
	fmt.Printf("\nTotal: %d messages\n", len(opps))
}

func runPending(cmd *cobra.Command, args []string) error {
	_, st := openReportStore()
	defer st.Close()

	recs, err := st.ListPending(context.Background(), reportLimit)
	if err != nil {
		return err
	}
	fmt.Printf("%-16s %-34s %-14s %s\n", "Sent", "Fingerprint", "Operator", "Message")
	fmt.Println(strings.Repeat("─", 80))
	for _, r := range recs {
		fmt.Printf("%-16s %-34s %-14s %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.OpportunityFingerprint,
			r.TargetOperator,
			r.NotificationMessageID,
		)
	}
	fmt.Printf("\nTotal: %d pending\n", len(recs))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	_, st := openReportStore()
	defer st.Close()

	s, err := st.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Opportunities:     %d\n", s.Opportunities)
	fmt.Printf("Deliveries:        %d (%d distinct contacts)\n", s.Deliveries, s.DistinctContacts)
	fmt.Printf("Notifications:     %d pending, %d confirmed, %d skipped\n",
		s.Notifications[model.StatusPending],
		s.Notifications[model.StatusConfirmed],
		s.Notifications[model.StatusSkipped],
	)
	if len(s.LastDeliveries) > 0 {
		fmt.Println("\nLatest sends:")
		for _, d := range s.LastDeliveries {
			fmt.Printf("  %s  %-30s %s\n", d.SentAt.Local().Format(time.DateTime), d.NormalizedContact, d.OpportunityFingerprint)
		}
	}
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, st := openReportStore()
	defer st.Close()

	res, err := st.Cleanup(context.Background(), retentionFrom(cfg))
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d notifications, %d sends, %d messages.\n", res.Notifications, res.Deliveries, res.Opportunities)
	return nil
}

func truncateCell(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
