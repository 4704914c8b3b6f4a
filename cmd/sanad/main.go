package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Sanad-Labs/sanad/pkg/config"
	"github.com/Sanad-Labs/sanad/pkg/grader"
	"github.com/Sanad-Labs/sanad/pkg/methodology"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "grade":
		return runGradeCmd(args[2:], stdout, stderr)
	case "chain":
		return runChainCmd(args[2:], stdout, stderr)
	case "calc":
		return runCalcCmd(args[2:], stdout, stderr)
	case "explain":
		return runExplainCmd(args[2:], stdout, stderr)
	case "pack":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: sanad pack <validate|show> --file <pack.yaml>")
			return 2
		}
		return runPackCmd(args[2:], stdout, stderr)
	case "version":
		return runVersionCmd(args[2:], stdout)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sSanad Grading Engine %s%s\n", ColorBold+ColorBlue, grader.EngineVersion, ColorReset)
	fmt.Fprintf(w, "%sEvery grade carries its chain of custody.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  sanad <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "GRADING")
	printCommand(w, "grade", "Grade claims from a JSON document (--input, --pack, --strict)")
	printCommand(w, "calc", "Propagate input grades onto a derived metric (--input)")
	printCommand(w, "chain", "Build or verify a transmission chain (--input, --verify)")

	printSection(w, "EXPLANATIONS")
	printCommand(w, "explain", "Render a grade result and verify its hash (--input)")

	printSection(w, "METHODOLOGY")
	printCommand(w, "pack", "Validate or show a methodology pack (validate/show)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}

func runVersionCmd(args []string, stdout io.Writer) int {
	jsonOut := len(args) > 0 && args[0] == "--json"
	if jsonOut {
		data, _ := json.MarshalIndent(map[string]any{
			"engine_version":      grader.EngineVersion,
			"methodology_line":    methodology.Line,
			"default_methodology": methodology.DefaultVersion,
		}, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}
	fmt.Fprintf(stdout, "sanad %s (methodology line %d, builtin %s)\n",
		grader.EngineVersion, methodology.Line, methodology.DefaultVersion)
	return 0
}

// newLogger builds the CLI logger on stderr at the configured level.
// Grading output stays on stdout; logs never mix into it.
func newLogger(cfg *config.Config, stderr io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

// readInput reads the document from path, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// loadRegistry resolves the effective methodology: an explicit pack
// path wins, otherwise the compiled-in defaults apply.
func loadRegistry(packPath string) (*methodology.Registry, error) {
	if packPath == "" {
		return methodology.Default(), nil
	}
	return methodology.LoadFile(packPath)
}
