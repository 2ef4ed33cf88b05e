package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/docstream/dedupe/internal/engine"
	"github.com/docstream/dedupe/internal/extract"
	"github.com/docstream/dedupe/internal/types"
)

var jsonOutput bool

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Deduplicate a batch of files",
	Long: `Run the deduplication pipeline over the given files, in argument order.

The earliest file establishes the canonical record for any identity;
later files are marked against it. Plain-text files get content hashing
and near-duplicate detection; binary files are compared by byte hash only.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.TextExtractor = extract.PlainText{}

		eng, err := engine.New(cfg)
		if err != nil {
			return err
		}

		entries := make([]*types.DocumentEntry, len(args))
		for i, path := range args {
			entries[i] = &types.DocumentEntry{
				ID:     filepath.Base(path),
				Source: types.FileSource(path),
			}
		}
		// Duplicate basenames get their full path as ID instead.
		names := make(map[string]int)
		for _, e := range entries {
			names[e.ID]++
		}
		for i, e := range entries {
			if names[e.ID] > 1 {
				e.ID = args[i]
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := eng.Run(ctx, entries)
		if err != nil {
			if result == nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Warning: run interrupted: %v (showing committed verdicts)\n", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		printReport(result)
		return nil
	},
}

func printReport(result *types.BatchResult) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Deduplication Report ==="))

	for _, res := range result.Results {
		switch {
		case res.Err != nil:
			fmt.Printf("  %s %s\n", red("✗"), res.ID)
			fmt.Printf("    %s\n", gray(res.Err.Error()))
		case res.Verdict.IsDuplicate:
			fmt.Printf("  %s %s\n", yellow("≈"), res.ID)
			fmt.Printf("    duplicate of %s (%s)\n", res.Verdict.DuplicateOf, res.Verdict.MatchedLayer)
		default:
			fmt.Printf("  %s %s\n", green("●"), res.ID)
			fmt.Printf("    %s\n", gray("unique, kept"))
		}
	}

	s := result.Stats
	fmt.Printf("\n%s\n", yellow("Summary:"))
	fmt.Printf("  Entries:     %d\n", s.TotalEntries)
	fmt.Printf("  Kept:        %s\n", green(fmt.Sprintf("%d", s.UniqueCount)))
	fmt.Printf("  Duplicates:  %d (byte: %d, content: %d, near-dup: %d)\n",
		s.DuplicateCount, s.LayerCounts[types.LayerByteHash],
		s.LayerCounts[types.LayerContentHash], s.LayerCounts[types.LayerNearDuplicate])
	if s.GuardVetoes > 0 {
		fmt.Printf("  Guard vetoes: %d (textual matches kept as distinct documents)\n", s.GuardVetoes)
	}
	if s.FailedEntries > 0 {
		fmt.Printf("  Failed:      %s\n", red(fmt.Sprintf("%d", s.FailedEntries)))
	}
	fmt.Printf("  Extractor calls: %d\n", s.ExtractorCalls)
	fmt.Printf("  Time:        %v\n", s.ProcessingTime.Round(time.Millisecond))
}

func init() {
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the full batch result as JSON")
	rootCmd.AddCommand(runCmd)
}
