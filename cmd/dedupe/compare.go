package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/docstream/dedupe/internal/engine"
	"github.com/docstream/dedupe/internal/extract"
	"github.com/docstream/dedupe/internal/types"
)

var compareCmd = &cobra.Command{
	Use:   "compare <file-a> <file-b>",
	Short: "Diagnose how two files relate across all layers",
	Long: `Run both files through the pipeline as a two-entry batch and report the
layer-by-layer relationship: byte-hash equality, content-hash equality,
estimated Jaccard similarity, and the final verdict.`,
	Args: cobra.ExactArgs(2),
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

		entries := []*types.DocumentEntry{
			{ID: args[0], Source: types.FileSource(args[0])},
			{ID: args[1], Source: types.FileSource(args[1])},
		}
		result, err := eng.Run(context.Background(), entries)
		if err != nil {
			return err
		}
		for _, res := range result.Results {
			if res.Err != nil {
				return fmt.Errorf("%s: %w", res.ID, res.Err)
			}
		}

		a, b := result.Results[0], result.Results[1]
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Pairwise Comparison ==="))
		fmt.Printf("  Byte hash:      %s\n", eqWord(a.Fingerprints.ByteHash == b.Fingerprints.ByteHash))
		fmt.Printf("  Content hash:   %s\n", eqWord(a.Fingerprints.ContentHash != "" &&
			a.Fingerprints.ContentHash == b.Fingerprints.ContentHash))
		fmt.Printf("  Jaccard (est):  %.3f (threshold %.2f)\n",
			engine.EstimateSimilarity(a.Fingerprints.Signature, b.Fingerprints.Signature),
			cfg.JaccardThreshold)

		fmt.Println()
		if b.Verdict.IsDuplicate {
			fmt.Printf("  Verdict: %s (%s duplicates %s at the %s layer)\n",
				yellow("DUPLICATE"), b.ID, b.Verdict.DuplicateOf, b.Verdict.MatchedLayer)
		} else {
			fmt.Printf("  Verdict: %s (both documents kept)\n", green("DISTINCT"))
			if result.Stats.GuardVetoes > 0 {
				fmt.Printf("  (textual match vetoed by identity arbitration)\n")
			}
		}
		return nil
	},
}

func eqWord(eq bool) string {
	if eq {
		return color.New(color.FgYellow).Sprint("equal")
	}
	return color.New(color.FgGreen).Sprint("different")
}

func init() {
	rootCmd.AddCommand(compareCmd)
}
