package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/Sanad-Labs/sanad/pkg/methodology"
	"github.com/Sanad-Labs/sanad/pkg/tiers"
)

func runPackCmd(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "validate":
		return runPackValidate(args[1:], stdout, stderr, false)
	case "show":
		return runPackValidate(args[1:], stdout, stderr, true)
	default:
		fmt.Fprintf(stderr, "Unknown pack subcommand: %s\n", args[0])
		return 2
	}
}

// runPackValidate loads a methodology pack through the full fail-closed
// pipeline. show additionally prints the effective parameters after the
// builtin merge.
func runPackValidate(args []string, stdout, stderr io.Writer, show bool) int {
	cmd := flag.NewFlagSet("pack validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		filePath   string
		jsonOutput bool
	)
	cmd.StringVar(&filePath, "file", "", "Path to the methodology pack YAML (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if filePath == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		cmd.Usage()
		return 2
	}

	reg, err := methodology.LoadFile(filePath)
	if err != nil {
		var loadErr *methodology.PackLoadError
		if jsonOutput {
			result := map[string]any{"file": filePath, "valid": false, "error": err.Error()}
			if errors.As(err, &loadErr) {
				result["step"] = loadErr.Step
			}
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Fprintln(stdout, string(data))
		} else if errors.As(err, &loadErr) {
			fmt.Fprintf(stderr, "Pack rejected at step %q: %s\n", loadErr.Step, loadErr.Reason)
		} else {
			fmt.Fprintf(stderr, "Pack rejected: %v\n", err)
		}
		return 1
	}

	if jsonOutput {
		result := map[string]any{
			"file":    filePath,
			"valid":   true,
			"name":    reg.Name(),
			"version": reg.Version(),
		}
		if show {
			weights := map[string]string{}
			for _, tier := range tiers.Ordered {
				if w, ok := reg.TierWeight(tier.ID); ok {
					weights[string(tier.ID)] = w.Score()
				}
			}
			result["tier_weights"] = weights
			result["deviation_threshold"] = reg.DeviationThreshold().Score()
			result["staleness_horizon_days"] = reg.StalenessHorizonDays()
			rules := make([]string, 0, len(reg.Predicates()))
			for _, p := range reg.Predicates() {
				rules = append(rules, p.Rule)
			}
			result["predicates"] = rules
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}

	fmt.Fprintf(stdout, "Pack valid: %s %s\n", reg.Name(), reg.Version())
	if show {
		fmt.Fprintf(stdout, "  deviation threshold: %s\n", reg.DeviationThreshold().Score())
		fmt.Fprintf(stdout, "  staleness horizon:   %d days\n", reg.StalenessHorizonDays())
		fmt.Fprintln(stdout, "  tier weights:")
		for _, tier := range tiers.Ordered {
			if w, ok := reg.TierWeight(tier.ID); ok {
				fmt.Fprintf(stdout, "    %-24s %s\n", tier.ID, w.Score())
			}
		}
		for _, p := range reg.Predicates() {
			fmt.Fprintf(stdout, "  predicate %s: %s\n", p.Rule, p.Expr())
		}
	}
	return 0
}
