package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/aegis/internal/scenario"
)

var (
	simFiles  []string
	simFormat string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringArrayVar(&simFiles, "file", nil, "Scenario YAML file (repeatable; default runs the built-in scenarios)")
	simulateCmd.Flags().StringVarP(&simFormat, "format", "f", "text", "Output format (text|json)")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run attack and nominal scenarios through an in-process gate",
	Long: "Replays scripted command sequences (nominal arm, replay, tampered tag,\n" +
		"high-altitude GOTO, unknown key) against a fresh session using the configured\n" +
		"bounds and weights, and checks every decision against its expectation.",
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	ec, err := cfg.Engine()
	if err != nil {
		return err
	}
	ec.SessionID = ""

	ctx := context.Background()
	var results []*scenario.RunResult
	if len(simFiles) == 0 {
		for _, s := range scenario.Builtin() {
			r, err := scenario.Run(ctx, s, ec)
			if err != nil {
				return err
			}
			results = append(results, r)
		}
	} else {
		for _, path := range simFiles {
			r, err := scenario.LoadAndRun(ctx, path, ec)
			if err != nil {
				return err
			}
			results = append(results, r)
		}
	}

	out := cmd.OutOrStdout()
	switch simFormat {
	case "json":
		s, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, scenario.FormatText(results))
	}

	for _, r := range results {
		if r.Failed > 0 {
			return fmt.Errorf("%d scenario step(s) failed in %s", r.Failed, r.Name)
		}
	}
	return nil
}
