package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sanad-Labs/sanad/pkg/audit"
	"github.com/Sanad-Labs/sanad/pkg/config"
	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/engine"
	"github.com/Sanad-Labs/sanad/pkg/evidence"
	"github.com/Sanad-Labs/sanad/pkg/tiers"
)

// gradeDoc is the grade subcommand's input document. A single claim
// uses the top-level fields; a batch lists claims.
type gradeDoc struct {
	TenantID   string                       `json:"tenant_id"`
	CutoffDate string                       `json:"cutoff_date,omitempty"`
	Claim      *contracts.Claim             `json:"claim,omitempty"`
	Items      []contracts.EvidenceItem     `json:"items,omitempty"`
	Chain      []contracts.TransmissionNode `json:"chain,omitempty"`
	Tiers      map[string]string            `json:"tiers,omitempty"`
	Claims     []gradeClaimDoc              `json:"claims,omitempty"`
}

type gradeClaimDoc struct {
	Claim contracts.Claim              `json:"claim"`
	Items []contracts.EvidenceItem     `json:"items"`
	Chain []contracts.TransmissionNode `json:"chain,omitempty"`
	Tiers map[string]string            `json:"tiers,omitempty"`
}

// runSettings is the merged outcome of config, run profile, and flags.
// Flags win over the profile, the profile over the environment.
type runSettings struct {
	packPath string
	cutoff   time.Time
	output   string
	strict   bool
}

func resolveRun(cfg *config.Config, profileName, profilesDir, packPath, cutoffArg, output string, strict bool, stderr io.Writer) (runSettings, int) {
	run := runSettings{
		packPath: cfg.MethodologyPack,
		strict:   cfg.StrictMode,
		output:   "json",
	}

	if profileName != "" {
		profile, err := config.LoadRunProfile(profilesDir, profileName)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return run, 2
		}
		if profile.MethodologyPack != "" {
			run.packPath = profile.MethodologyPack
		}
		if profile.CutoffDate != "" {
			cutoff, err := time.Parse("2006-01-02", profile.CutoffDate)
			if err != nil {
				fmt.Fprintf(stderr, "Error: profile %s: bad cutoff_date %q\n", profile.Name, profile.CutoffDate)
				return run, 2
			}
			run.cutoff = cutoff
		}
		if profile.Output != "" {
			run.output = profile.Output
		}
		run.strict = run.strict || profile.StrictMode
	}

	if packPath != "" {
		run.packPath = packPath
	}
	if cutoffArg != "" {
		cutoff, err := time.Parse("2006-01-02", cutoffArg)
		if err != nil {
			fmt.Fprintf(stderr, "Error: bad --cutoff %q, want YYYY-MM-DD\n", cutoffArg)
			return run, 2
		}
		run.cutoff = cutoff
	}
	if output != "" {
		run.output = output
	}
	if run.output != "json" && run.output != "summary" {
		fmt.Fprintf(stderr, "Error: unknown output format %q\n", run.output)
		return run, 2
	}
	run.strict = run.strict || strict

	return run, 0
}

func runGradeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("grade", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		inputPath   string
		packPath    string
		profileName string
		profilesDir string
		cutoffArg   string
		output      string
		strict      bool
		auditOut    string
	)
	cmd.StringVar(&inputPath, "input", "", "Path to the grade document, - for stdin (REQUIRED)")
	cmd.StringVar(&packPath, "pack", "", "Methodology pack path (default: builtin)")
	cmd.StringVar(&profileName, "profile", "", "Run profile name")
	cmd.StringVar(&profilesDir, "profiles-dir", "profiles", "Directory holding profile_*.yaml")
	cmd.StringVar(&cutoffArg, "cutoff", "", "Staleness cutoff date, YYYY-MM-DD")
	cmd.StringVar(&output, "output", "", "Output format: json or summary")
	cmd.BoolVar(&strict, "strict", false, "Exit non-zero when a graded claim carries defects")
	cmd.StringVar(&auditOut, "audit", "", "Write the audit timeline JSON to this path")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" {
		fmt.Fprintln(stderr, "Error: --input is required")
		cmd.Usage()
		return 2
	}

	cfg := config.Load()
	run, code := resolveRun(cfg, profileName, profilesDir, packPath, cutoffArg, output, strict, stderr)
	if code != 0 {
		return code
	}

	data, err := readInput(inputPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading input: %v\n", err)
		return 2
	}
	var doc gradeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		fmt.Fprintf(stderr, "Error parsing input: %v\n", err)
		return 2
	}
	if doc.CutoffDate != "" && run.cutoff.IsZero() {
		cutoff, err := time.Parse("2006-01-02", doc.CutoffDate)
		if err != nil {
			fmt.Fprintf(stderr, "Error: bad cutoff_date %q in input\n", doc.CutoffDate)
			return 2
		}
		run.cutoff = cutoff
	}

	reqs, store, chains, err := gradeRequests(doc, run.cutoff)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	reg, err := loadRegistry(run.packPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading methodology: %v\n", err)
		return 1
	}

	timeline := audit.NewTimeline()
	eng := engine.New(engine.Deps{
		Evidence: store,
		Chains:   chains,
		Registry: reg,
		Audit:    timeline,
		Logger:   newLogger(cfg, stderr),
	})

	entries := eng.GradeBatch(context.Background(), reqs)

	if run.output == "summary" {
		renderSummary(stdout, entries)
	} else {
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "Error rendering output: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, string(out))
	}

	if auditOut != "" {
		exported, err := timeline.Export()
		if err == nil {
			err = os.WriteFile(auditOut, exported, 0o644)
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error writing audit timeline: %v\n", err)
			return 1
		}
	}

	return gradeExitCode(entries, run.strict)
}

// gradeRequests loads the document's evidence and chains into fresh
// stores and expands the document into engine requests that resolve
// from them. Either form is fine on its own; mixing the single and
// batch shapes is rejected.
func gradeRequests(doc gradeDoc, cutoff time.Time) ([]engine.GradeRequest, *evidence.Store, *evidence.ChainStore, error) {
	if doc.Claim != nil && len(doc.Claims) > 0 {
		return nil, nil, nil, fmt.Errorf("input mixes a single claim and a claims batch; use one")
	}

	store := evidence.NewStore()
	chains := evidence.NewChainStore()
	ctx := context.Background()

	load := func(claim contracts.Claim, items []contracts.EvidenceItem, chain []contracts.TransmissionNode, tierDoc map[string]string) (engine.GradeRequest, error) {
		tierMap, err := parseTiers(tierDoc)
		if err != nil {
			return engine.GradeRequest{}, err
		}
		for _, item := range items {
			if item.TenantID == "" {
				item.TenantID = doc.TenantID
			}
			if err := store.Put(claim.ClaimID, item); err != nil {
				return engine.GradeRequest{}, err
			}
		}
		if len(chain) > 0 {
			if err := chains.SaveChain(ctx, doc.TenantID, claim.ClaimID, chain); err != nil {
				return engine.GradeRequest{}, err
			}
		}
		return engine.GradeRequest{
			TenantID: doc.TenantID,
			Claim:    &claim,
			Tiers:    tierMap,
			Cutoff:   cutoff,
		}, nil
	}

	if doc.Claim != nil {
		req, err := load(*doc.Claim, doc.Items, doc.Chain, doc.Tiers)
		if err != nil {
			return nil, nil, nil, err
		}
		return []engine.GradeRequest{req}, store, chains, nil
	}

	if len(doc.Claims) == 0 {
		return nil, nil, nil, fmt.Errorf("input carries no claim")
	}
	reqs := make([]engine.GradeRequest, 0, len(doc.Claims))
	for i := range doc.Claims {
		c := doc.Claims[i]
		req, err := load(c.Claim, c.Items, c.Chain, c.Tiers)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("claim %s: %w", c.Claim.ClaimID, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, store, chains, nil
}

func parseTiers(m map[string]string) (map[string]tiers.TierID, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]tiers.TierID, len(m))
	for evidenceID, raw := range m {
		id, err := tiers.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("evidence %s: %w", evidenceID, err)
		}
		out[evidenceID] = id
	}
	return out, nil
}

func renderSummary(w io.Writer, entries []engine.BatchEntry) {
	for _, entry := range entries {
		if entry.Status == engine.BatchBlocked {
			fmt.Fprintf(w, "%-20s %-8s %s\n", entry.ClaimID, entry.Status, entry.Reason)
			continue
		}
		res := entry.Result
		fmt.Fprintf(w, "%-20s %-8s grade=%s effective=%s defects=%d pass=%s\n",
			entry.ClaimID, entry.Status, res.Grade, res.EffectiveGrade, len(res.Defects), res.PassID)
	}
}

func gradeExitCode(entries []engine.BatchEntry, strict bool) int {
	for _, entry := range entries {
		if entry.Status == engine.BatchBlocked {
			return 1
		}
		if strict && entry.Result != nil && len(entry.Result.Defects) > 0 {
			return 1
		}
	}
	return 0
}
