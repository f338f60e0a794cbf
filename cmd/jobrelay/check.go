package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobrelay/internal/model"
	"github.com/amishk599/jobrelay/internal/store"
)

var checkCmd = &cobra.Command{
	Use:   "check [text]",
	Short: "Classify one message, print what would be sent, exit",
	Long: "Dry run: classifies the text (argument or stdin), extracts and filters contacts " +
		"and prints what the daemon would do. Nothing is sent or written to the store.",
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, logger := mustLoad()

	text, err := checkInput(args, os.Stdin)
	if err != nil {
		logger.Error("failed to read message", "error", err)
		os.Exit(1)
	}
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "nothing to check: pass the message as an argument or on stdin")
		os.Exit(1)
	}

	logger.Info("check mode: nothing will be sent or stored")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	classifier, err := setupClassifier(cfg, logger)
	if err != nil {
		logger.Error("failed to set up classifier", "error", err)
		os.Exit(1)
	}
	verdict, err := classifier.Classify(ctx, text)
	if err != nil {
		logger.Error("classification failed", "error", err)
		os.Exit(1)
	}

	extracted := setupExtractor(cfg, logger).Extract(ctx, text)
	contacts := setupFilter(cfg, logger).Apply(extracted)

	fmt.Printf("Fingerprint: %s\n", store.Fingerprint(text))
	fmt.Printf("Label:       %d\n", verdict.Label)
	fmt.Printf("Score:       %.2f (threshold %.2f)\n", verdict.Score, cfg.Dispatch.Threshold)
	printContacts(contacts)
	fmt.Printf("\nDecision:    %s\n", checkDecision(verdict, cfg.Dispatch.Threshold, contacts))
	return nil
}

func checkInput(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// checkDecision mirrors the dispatch gate without touching the ledgers.
func checkDecision(v model.Verdict, threshold float64, c model.Contacts) string {
	switch {
	case !v.Positive():
		return "skip (not a job offer)"
	case v.Score < threshold:
		return "skip (below threshold)"
	case c.Empty():
		return "notify operators only (no contacts)"
	default:
		return fmt.Sprintf("dispatch to %d contact(s), subject to cooldown", len(c.Sendable()))
	}
}

func printContacts(c model.Contacts) {
	fmt.Println("\nContacts:")
	if c.Empty() && len(c.Links) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, e := range c.Emails {
		fmt.Printf("  email     %s\n", e)
	}
	for _, h := range c.Handles {
		fmt.Printf("  telegram  %s\n", h)
	}
	for _, l := range c.Links {
		fmt.Printf("  link      %s\n", l)
	}
}
