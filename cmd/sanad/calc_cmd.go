package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Sanad-Labs/sanad/pkg/calcsanad"
	"github.com/Sanad-Labs/sanad/pkg/config"
	"github.com/Sanad-Labs/sanad/pkg/contracts"
	"github.com/Sanad-Labs/sanad/pkg/engine"
)

// calcDoc is the calc subcommand's input document. Inputs map claim id
// to the grade result recorded for it; formulas optionally pin the
// known formula definitions for drift checks.
type calcDoc struct {
	Calc     contracts.CalcSanad                    `json:"calc"`
	Inputs   map[string]*contracts.SanadGradeResult `json:"inputs"`
	Formulas map[string]calcsanad.FormulaDef        `json:"formulas,omitempty"`
}

func runCalcCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("calc", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var inputPath string
	cmd.StringVar(&inputPath, "input", "", "Path to the calc document, - for stdin (REQUIRED)")

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
	var doc calcDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		fmt.Fprintf(stderr, "Error parsing input: %v\n", err)
		return 2
	}

	var formulas calcsanad.Registry
	if len(doc.Formulas) > 0 {
		formulas = calcsanad.StaticRegistry(doc.Formulas)
	}

	eng := engine.New(engine.Deps{
		Formulas: formulas,
		Logger:   newLogger(config.Load(), stderr),
	})
	res, err := eng.PropagateCalcGrade(context.Background(), doc.Calc, doc.Inputs)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error rendering output: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}
