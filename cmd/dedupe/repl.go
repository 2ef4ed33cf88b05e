package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/docstream/dedupe/internal/engine"
	"github.com/docstream/dedupe/internal/extract"
	"github.com/docstream/dedupe/internal/types"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive deduplication shell",
	Long: `Start an interactive shell for exploring a working set of files:

  add <file>...     add files to the working set
  list              show the working set
  run               deduplicate the working set
  set threshold N   change the Jaccard threshold (0..1)
  clear             empty the working set
  help              show commands
  exit              leave the shell

Useful for observing how threshold changes move documents between
"near-duplicate" and "distinct".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.TextExtractor = extract.PlainText{}
		shell := &replShell{cfg: cfg}
		return shell.run()
	},
}

type replShell struct {
	cfg   engine.Config
	files []string
}

func (s *replShell) run() error {
	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cyan("dedupe> "),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("dedupe interactive shell. Type 'help' for commands.")
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := s.dispatch(line); err != nil {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

func (s *replShell) dispatch(line string) error {
	parts := strings.Fields(line)
	switch parts[0] {
	case "help":
		fmt.Println("commands: add <file>..., list, run, set threshold N, clear, exit")
	case "add":
		if len(parts) < 2 {
			return fmt.Errorf("usage: add <file>...")
		}
		for _, path := range parts[1:] {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			if s.contains(path) {
				fmt.Printf("already in working set: %s\n", path)
				continue
			}
			s.files = append(s.files, path)
		}
		fmt.Printf("working set: %d files\n", len(s.files))
	case "list":
		if len(s.files) == 0 {
			fmt.Println("working set is empty")
		}
		for i, f := range s.files {
			fmt.Printf("  %2d. %s\n", i+1, f)
		}
	case "clear":
		s.files = nil
		fmt.Println("working set cleared")
	case "set":
		if len(parts) != 3 || parts[1] != "threshold" {
			return fmt.Errorf("usage: set threshold N")
		}
		v, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return fmt.Errorf("invalid threshold: %w", err)
		}
		trial := s.cfg
		trial.JaccardThreshold = v
		if err := trial.Validate(); err != nil {
			return err
		}
		s.cfg = trial
		fmt.Printf("threshold set to %.2f\n", v)
	case "run":
		if len(s.files) == 0 {
			return fmt.Errorf("working set is empty (use 'add' first)")
		}
		eng, err := engine.New(s.cfg)
		if err != nil {
			return err
		}
		entries := make([]*types.DocumentEntry, len(s.files))
		for i, path := range s.files {
			entries[i] = &types.DocumentEntry{ID: path, Source: types.FileSource(path)}
		}
		result, err := eng.Run(context.Background(), entries)
		if err != nil {
			return err
		}
		printReport(result)
	default:
		return fmt.Errorf("unknown command %q (try 'help')", parts[0])
	}
	return nil
}

func (s *replShell) contains(path string) bool {
	for _, f := range s.files {
		if f == path {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(replCmd)
}
