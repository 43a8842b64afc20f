// Command streampatch overwrites a byte pattern inside files in place.
//
// Usage example:
//
//	streampatch 'Optimized by JPEGmini 3.9.2.5L Internal 0x' \
//	            'Optimized by JPEGCrunchr 1.0.1            ' *.jpg
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"

	"github.com/mgutz/ansi"
	"github.com/pborman/getopt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	streamsearch "github.com/masroore/stream-search"
	"github.com/masroore/stream-search/internal/patch"
)

var (
	highlightCode = ansi.ColorCode("green+hu:black")
	missCode      = ansi.ColorCode("red")
	resetCode     = ansi.ColorCode("reset")
)

const (
	exitFailure = 1
	exitUsage   = 2
)

type options struct {
	hex        bool
	all        bool
	dryRun     bool
	force      bool
	failFast   bool
	jobs       int
	simple     bool
	verbose    bool
	help       bool
	cpuprofile string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := options{jobs: 1}

	getopt.BoolVarLong(&opts.hex, "hex", 'x', "needle and replacement are hex encoded")
	getopt.BoolVarLong(&opts.all, "all", 'a', "Replace every occurrence, not only the first")
	getopt.BoolVarLong(&opts.dryRun, "dry-run", 'n', "Report matches without writing")
	getopt.BoolVarLong(&opts.force, "force", 'f', "Allow a replacement of a different length")
	getopt.BoolVarLong(&opts.failFast, "fail-fast", 0, "Stop at the first file that fails")
	getopt.IntVarLong(&opts.jobs, "jobs", 'j', "Files to patch concurrently", "n")
	getopt.BoolVarLong(&opts.simple, "simple", 's', "Show simple output")
	getopt.BoolVarLong(&opts.verbose, "verbose", 'v', "Show log messages")
	getopt.StringVarLong(&opts.cpuprofile, "cpuprofile", 0, "Write cpuprofile file", "path")
	getopt.BoolVarLong(&opts.help, "help", 'h', "Shows this message")
	getopt.SetProgram("streampatch")
	getopt.SetParameters("needle replacement file ...")
	getopt.SetUsage(func() {
		getopt.PrintUsage(os.Stderr)
		fmt.Fprint(os.Stderr, "needle      - bytes to search for (at most 1024)\n")
		fmt.Fprint(os.Stderr, "replacement - bytes written over each match\n")
		fmt.Fprint(os.Stderr, "file        - files or glob patterns to patch\n")
	})
	getopt.Parse()

	if opts.help {
		getopt.Usage()
		return 0
	}

	logger, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "streampatch: %v\n", err)
		return exitFailure
	}
	defer logger.Sync()

	if opts.cpuprofile != "" {
		f, err := os.Create(opts.cpuprofile)
		if err != nil {
			logger.Error("cpu profile", zap.Error(err))
			return exitFailure
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logger.Error("cpu profile", zap.Error(err))
			return exitFailure
		}
		defer pprof.StopCPUProfile()
	}

	if getopt.NArgs() < 3 {
		fmt.Fprintf(os.Stderr, "Needle, replacement or files are missing!\n")
		getopt.Usage()
		return exitUsage
	}
	args := getopt.Args()

	needle, err := decodeArg(args[0], opts.hex)
	if err != nil {
		logger.Error("invalid needle", zap.Error(err))
		return exitUsage
	}
	replacement, err := decodeArg(args[1], opts.hex)
	if err != nil {
		logger.Error("invalid replacement", zap.Error(err))
		return exitUsage
	}

	pattern, err := streamsearch.Compile(needle)
	if err != nil {
		logger.Error("invalid needle", zap.Error(err))
		return exitUsage
	}

	patcher, err := patch.New(pattern, replacement,
		patch.WithLogger(logger),
		patch.WithAll(opts.all),
		patch.WithDryRun(opts.dryRun),
		patch.WithForce(opts.force),
		patch.WithFailFast(opts.failFast),
		patch.WithJobs(opts.jobs),
	)
	if err != nil {
		logger.Error("invalid replacement", zap.Error(err), zap.String("hint", "use --force to allow it"))
		return exitUsage
	}

	files, err := patch.ExpandFiles(args[2:])
	if err != nil {
		logger.Error("invalid file pattern", zap.Error(err))
		return exitUsage
	}
	logger.Debug("patching",
		zap.Stringer("pattern", pattern),
		zap.Int("files", len(files)),
		zap.Int("jobs", opts.jobs))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := patcher.PatchFiles(ctx, files)
	for _, res := range results {
		if opts.simple {
			printSimpleResult(res)
		} else {
			printResult(res)
		}
	}

	if err != nil {
		logger.Error("some files were not patched", zap.Int("failed", len(multierr.Errors(err))))
		return exitFailure
	}
	return 0
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func decodeArg(arg string, isHex bool) ([]byte, error) {
	if !isHex {
		return []byte(arg), nil
	}
	return hex.DecodeString(strings.ReplaceAll(arg, " ", ""))
}

func printSimpleResult(res patch.Result) {
	if res.Err != nil || !res.Found() {
		fmt.Printf("%v -1\n", res.Path)
		return
	}
	for _, offset := range res.Offsets {
		fmt.Printf("%v %d\n", res.Path, offset)
	}
}

func printResult(res patch.Result) {
	verb := "patched"
	if res.DryRun {
		verb = "found"
	}

	if res.Err != nil {
		fmt.Printf("(%v) - %v%v%v\n", res.Path, missCode, "failed", resetCode)
		return
	}
	if !res.Found() {
		fmt.Printf("(%v) - %v%v%v\n", res.Path, missCode, "not found", resetCode)
		return
	}

	offsets := make([]string, len(res.Offsets))
	for i, offset := range res.Offsets {
		offsets[i] = fmt.Sprintf("%v%d%v", highlightCode, offset, resetCode)
	}
	fmt.Printf("(%v) - %v at %v\n", res.Path, verb, strings.Join(offsets, ", "))
}
