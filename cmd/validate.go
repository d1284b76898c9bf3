package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hostel-agent/internal/config"
	"hostel-agent/internal/knowledge"
	"hostel-agent/internal/workflow"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config, workflow definitions and knowledge file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		out := cmd.OutOrStdout()
		if dir := cfg.Content.WorkflowsDir; dir != "" {
			wfs, err := workflow.LoadDir(dir)
			if err != nil {
				return fmt.Errorf("loading workflows: %w", err)
			}
			if _, err := workflow.NewEngine(wfs, nil); err != nil {
				return fmt.Errorf("loading workflows: %w", err)
			}
			fmt.Fprintf(out, "workflows: %d ok (%s)\n", len(wfs), dir)
		}
		if path := cfg.Content.KnowledgeFile; path != "" {
			src, err := knowledge.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading knowledge: %w", err)
			}
			fmt.Fprintf(out, "knowledge topics: %d ok (%s)\n", len(src.Topics()), path)
		}
		fmt.Fprintf(out, "config ok: store=%s providers=%d operators=%d\n",
			cfg.Store.Driver, len(cfg.LLM.Providers), len(cfg.Escalation.Operators))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
