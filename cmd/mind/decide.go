package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nidhogg/nuka-mind/internal/cognitive"
	"github.com/nidhogg/nuka-mind/internal/mind"
	"github.com/spf13/cobra"
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Run one decision cycle offline",
	Long: `Create a mind from a YAML profile, run one decision cycle for the
observation in the input file and print the decision as JSON. Nothing is
persisted to PostgreSQL or published to Redis.

The input file holds {"observation": {...}, "available_actions": [...]};
available_actions may be omitted.

Examples:
  mind decide --profile profiles/ada.yaml --input observation.json
  mind decide --profile profiles/ada.yaml --input observation.json --consolidate`,
	Args: cobra.NoArgs,
	RunE: runDecide,
}

func init() {
	rootCmd.AddCommand(decideCmd)

	decideCmd.Flags().String("profile", "", "mind profile YAML (required)")
	decideCmd.Flags().String("input", "", "observation JSON file (required)")
	decideCmd.Flags().Bool("consolidate", false, "consolidate the new memories after deciding")
	_ = decideCmd.MarkFlagRequired("profile")
	_ = decideCmd.MarkFlagRequired("input")
}

type decideInput struct {
	Observation      cognitive.Observation       `json:"observation"`
	AvailableActions []cognitive.AvailableAction `json:"available_actions,omitempty"`
}

type decideOutput struct {
	Decision      *mind.Decision            `json:"decision"`
	Consolidation *mind.ConsolidationReport `json:"consolidation,omitempty"`
}

func runDecide(cmd *cobra.Command, args []string) error {
	profilePath, _ := cmd.Flags().GetString("profile")
	inputPath, _ := cmd.Flags().GetString("input")
	consolidate, _ := cmd.Flags().GetBool("consolidate")

	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	spec, err := mind.LoadProfile(profilePath)
	if err != nil {
		return err
	}
	in, err := readDecideInput(inputPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if _, err := a.registry.Create(ctx, spec); err != nil {
		return fmt.Errorf("create mind: %w", err)
	}
	d, err := a.registry.Decide(ctx, spec.ID, in.Observation, in.AvailableActions)
	if err != nil {
		return fmt.Errorf("decide: %w", err)
	}

	out := decideOutput{Decision: d}
	if consolidate {
		if out.Consolidation, err = a.registry.Consolidate(ctx, spec.ID); err != nil {
			return fmt.Errorf("consolidate: %w", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func readDecideInput(path string) (*decideInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input %s: %w", path, err)
	}
	var in decideInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse input %s: %w", path, err)
	}
	return &in, nil
}
