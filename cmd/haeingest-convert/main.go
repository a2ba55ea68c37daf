// Command haeingest-convert transforms a Health Auto Export payload file
// offline and prints the resulting points without touching any storage.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/claude/haeingest/internal/ingest"
	"github.com/claude/haeingest/internal/ingest/hae"
	"github.com/claude/haeingest/internal/storage"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("haeingest-convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inPath := fs.String("in", "-", "payload file, or - for stdin")
	format := fs.String("format", "lineprotocol", "output format: lineprotocol, table or json")
	verbose := fs.Bool("v", false, "log skipped entries to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	body, err := readInput(*inPath, stdin)
	if err != nil {
		log.Error("failed to read payload", "path", *inPath, "error", err)
		return 1
	}

	points, sum, err := hae.NewProvider(storage.Discard{}, log).Preview(body)
	if err != nil {
		var ve *ingest.ValidationError
		if errors.As(err, &ve) {
			fmt.Fprintf(stderr, "%s: %s\n", ve.Code, ve.Message)
			return 1
		}
		log.Error("transform failed", "error", err)
		return 1
	}
	for _, r := range sum.SkipReasons {
		log.Debug("skipped", "reason", r.String())
	}

	switch *format {
	case "lineprotocol":
		for _, line := range storage.LineProtocol(points) {
			fmt.Fprintln(stdout, line)
		}
	case "table":
		fmt.Fprintln(stdout, renderPoints(points))
		fmt.Fprintln(stdout, renderSummary(sum))
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"points": points, "summary": sum}); err != nil {
			log.Error("encoding output", "error", err)
			return 1
		}
	default:
		fmt.Fprintf(stderr, "unknown format %q (want lineprotocol, table or json)\n", *format)
		return 2
	}
	return 0
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
