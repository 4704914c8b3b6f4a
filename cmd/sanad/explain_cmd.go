package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/Sanad-Labs/sanad/pkg/canonicalize"
	"github.com/Sanad-Labs/sanad/pkg/contracts"
)

// runExplainCmd renders a stored grade result and verifies that its
// explanation hash still matches the entries. A mismatch means the
// record was altered after grading.
func runExplainCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("explain", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		inputPath  string
		jsonOutput bool
	)
	cmd.StringVar(&inputPath, "input", "", "Path to a grade result JSON, - for stdin (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output verification result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" {
		fmt.Fprintln(stderr, "Error: --input is required")
		cmd.Usage()
		return 2
	}

	data, err := readInput(inputPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading input: %v\n", err)
		return 2
	}
	var res contracts.SanadGradeResult
	if err := json.Unmarshal(data, &res); err != nil {
		fmt.Fprintf(stderr, "Error parsing input: %v\n", err)
		return 2
	}

	computed, err := canonicalize.CanonicalHash(res.Explanations)
	if err != nil {
		fmt.Fprintf(stderr, "Error hashing explanations: %v\n", err)
		return 1
	}
	verified := computed == res.ExplanationHash

	if jsonOutput {
		out, _ := json.MarshalIndent(map[string]any{
			"claim_id":      res.ClaimID,
			"pass_id":       res.PassID,
			"grade":         res.Grade,
			"verified":      verified,
			"recorded_hash": res.ExplanationHash,
			"computed_hash": computed,
		}, "", "  ")
		fmt.Fprintln(stdout, string(out))
	} else {
		renderExplanation(stdout, &res, computed, verified)
	}

	if !verified {
		return 1
	}
	return 0
}

func renderExplanation(w io.Writer, res *contracts.SanadGradeResult, computed string, verified bool) {
	fmt.Fprintf(w, "Claim:       %s\n", res.ClaimID)
	fmt.Fprintf(w, "Pass:        %s\n", res.PassID)
	fmt.Fprintf(w, "Grade:       %s (effective %s)\n", res.Grade, res.EffectiveGrade)
	fmt.Fprintf(w, "Tawatur:     %s\n", res.Tawatur)
	if res.MethodologyVersion != "" {
		fmt.Fprintf(w, "Methodology: %s\n", res.MethodologyVersion)
	}
	if verified {
		fmt.Fprintf(w, "Hash:        verified (%s)\n", computed)
	} else {
		fmt.Fprintf(w, "Hash:        MISMATCH recorded=%s computed=%s\n", res.ExplanationHash, computed)
	}

	if len(res.InadmissibleEvidence) > 0 {
		fmt.Fprintln(w, "\nExcluded evidence:")
		for _, id := range sortedKeys(res.InadmissibleEvidence) {
			fmt.Fprintf(w, "  %-12s %s\n", id, res.InadmissibleEvidence[id])
		}
	}

	fmt.Fprintln(w, "\nExplanations:")
	for i, e := range res.Explanations {
		line := fmt.Sprintf("  %2d. [%s] %s", i+1, e.Kind, e.Rule)
		if e.EvidenceID != "" {
			line += " " + e.EvidenceID
		}
		if e.GradeBefore != "" || e.GradeAfter != "" {
			line += fmt.Sprintf(" %s>%s", e.GradeBefore, e.GradeAfter)
		}
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "      %s\n", e.Detail)
	}

	if len(res.Defects) > 0 {
		fmt.Fprintln(w, "\nDefects:")
		for i, d := range res.Defects {
			cured := ""
			if d.Cured {
				cured = ", cured"
			}
			fmt.Fprintf(w, "  %2d. %s [%s%s] cure=%s\n", i+1, d.Code, d.Severity, cured, d.Cure)
			fmt.Fprintf(w, "      %s\n", d.Detail)
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
