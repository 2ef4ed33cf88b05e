package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/docstream/dedupe/internal/engine"
	"github.com/docstream/dedupe/internal/identity"
)

var (
	configPath string
	threshold  float64
	workers    int
	useModel   bool
)

var rootCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Batch document deduplication engine",
	Long: `dedupe decides, for each document in a batch, whether it duplicates one
already admitted to the batch. It layers exact byte hashing, normalized
content hashing, and MinHash/LSH near-duplicate detection, with a final
identity-arbitration step that keeps legally distinct documents (an
agreement and its amendment, two invoices off one template) from being
conflated.`,
	SilenceUsage: true,
}

// loadConfig builds the engine config from defaults, environment, an
// optional YAML file, and flag overrides, in that order.
func loadConfig(cmd *cobra.Command) (engine.Config, error) {
	cfg, err := engine.ConfigFromEnv()
	if err != nil {
		return cfg, err
	}
	if configPath != "" {
		cfg, err = engine.LoadConfigFile(configPath, cfg)
		if err != nil {
			return cfg, err
		}
	}
	if cmd.Flags().Changed("threshold") {
		cfg.JaccardThreshold = threshold
	}
	if cmd.Flags().Changed("workers") {
		cfg.MaxWorkers = workers
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	if useModel {
		extractor, err := identity.NewModelExtractor(identity.ModelExtractorConfig{
			RequestTimeout: cfg.ExtractTimeout,
		})
		if err != nil {
			log.Printf("[CLI] model extractor unavailable: %v (using regex fallback)", err)
		} else {
			cfg.IdentityExtractor = extractor
		}
	}
	return cfg, nil
}

func main() {
	log.SetFlags(0)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().Float64Var(&threshold, "threshold", 0.85, "layer-3 Jaccard acceptance threshold")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 4, "fingerprint worker pool size")
	rootCmd.PersistentFlags().BoolVar(&useModel, "model-extractor", false, "use the model-backed identity extractor (needs ANTHROPIC_API_KEY)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
