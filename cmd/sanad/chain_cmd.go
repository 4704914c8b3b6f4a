package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Sanad-Labs/sanad/pkg/config"
	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/engine"
	"github.com/Sanad-Labs/sanad/pkg/sanadchain"
)

// chainDoc is the chain subcommand's input document. Building uses the
// items; verifying uses the supplied chain.
type chainDoc struct {
	TenantID    string                       `json:"tenant_id"`
	DealID      string                       `json:"deal_id"`
	ClaimID     string                       `json:"claim_id"`
	Items       []contracts.EvidenceItem     `json:"items,omitempty"`
	Chain       []contracts.TransmissionNode `json:"chain,omitempty"`
	ExtractorID string                       `json:"extractor_id,omitempty"`
	ToolVersion string                       `json:"tool_version,omitempty"`
	Deduped     bool                         `json:"deduped,omitempty"`
}

func runChainCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("chain", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		inputPath string
		verify    bool
	)
	cmd.StringVar(&inputPath, "input", "", "Path to the chain document, - for stdin (REQUIRED)")
	cmd.BoolVar(&verify, "verify", false, "Validate the document's chain instead of building one")

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
	var doc chainDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		fmt.Fprintf(stderr, "Error parsing input: %v\n", err)
		return 2
	}

	if verify {
		if err := sanadchain.Validate(doc.ClaimID, doc.Chain); err != nil {
			fmt.Fprintf(stderr, "Chain invalid: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Chain valid: %d nodes\n", len(doc.Chain))
		return 0
	}

	eng := engine.New(engine.Deps{Logger: newLogger(config.Load(), stderr)})
	nodes, err := eng.BuildSanadChain(context.Background(), engine.ChainRequest{
		TenantID: doc.TenantID,
		DealID:   doc.DealID,
		ClaimID:  doc.ClaimID,
		Items:    doc.Items,
		Meta: sanadchain.ExtractionMetadata{
			ExtractorID: doc.ExtractorID,
			ToolVersion: doc.ToolVersion,
			Deduped:     doc.Deduped,
		},
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error rendering output: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}
