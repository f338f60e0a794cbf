package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobrelay/internal/browse"
	"github.com/amishk599/jobrelay/internal/model"
	"github.com/amishk599/jobrelay/internal/store"
)

var browseLimit int

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse scanned messages interactively (TUI)",
	Long:  "Shows the channel picker, then the split-pane view of scanned and detected messages.",
	RunE:  runBrowseCmd,
}

func init() {
	browseCmd.Flags().IntVarP(&browseLimit, "limit", "n", 500, "number of recent messages to load")
	rootCmd.AddCommand(browseCmd)
}

func runBrowseCmd(cmd *cobra.Command, args []string) error {
	// No logger output here: anything printed before the alt-screen starts
	// corrupts the display.
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
	defer st.Close()

	runBrowse(st, cfg.Dispatch.Threshold)
	return nil
}

func runBrowse(st *store.SQLiteStore, threshold float64) {
	for {
		opps, err := browse.RunLoader("recent messages", func(ctx context.Context) ([]model.Opportunity, error) {
			return st.ListRecent(ctx, browseLimit)
		})
		if err != nil {
			fmt.Printf("Error loading messages: %v\n", err)
			return
		}
		if len(opps) == 0 {
			fmt.Println("No scanned messages yet.")
			return
		}

		channels := browse.Channels(opps)
		choice, err := browse.RunChannelPicker(channels)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return
		}
		if choice < 0 {
			return
		}

		selected := browse.FilterChannel(opps, channels[choice].Name)
		wantQuit, err := browse.Run(selected, threshold, st)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return
		}
		// else: back to the picker with a fresh load
	}
}
