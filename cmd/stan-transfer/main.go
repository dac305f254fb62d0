// Command stan-transfer applies an optional JSON seed and a JSON transfer
// request against the configured store and prints the result as JSON.
//
// Storage, blob and rule settings come from the STAN_* environment variables
// read by the core and blob packages.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"stancore/internal/blob"
	"stancore/internal/core"
	"stancore/internal/transfer"
	"stancore/pkg/domain"
)

const (
	exitOK         = 0
	exitRejected   = 1
	exitUsage      = 2
	exitFailed     = 3
	exitPostCommit = 4
)

var exitFunc = os.Exit

type options struct {
	seedPath    string
	requestPath string
	username    string
	validate    bool
	metrics     string
	trace       bool
	verbose     bool
}

func main() {
	exitFunc(cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stan-transfer", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.seedPath, "seed", "", "path to a JSON seed applied before the request")
	fs.StringVar(&opts.requestPath, "request", "", "path to the JSON transfer request")
	fs.StringVar(&opts.username, "user", os.Getenv("USER"), "user recorded on the operations")
	fs.BoolVar(&opts.validate, "validate", false, "report problems without writing anything")
	fs.StringVar(&opts.metrics, "metrics", os.Getenv("STAN_METRICS"), "dump metrics to stderr on exit: expvar|prometheus")
	fs.BoolVar(&opts.trace, "trace", false, "write operation spans to stderr as JSON lines")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if strings.TrimSpace(opts.requestPath) == "" {
		fmt.Fprintln(stderr, "stan-transfer: -request is required")
		return exitUsage
	}
	switch opts.metrics {
	case "", "expvar", "prometheus":
	default:
		fmt.Fprintf(stderr, "stan-transfer: unknown metrics exporter %q\n", opts.metrics)
		return exitUsage
	}
	return run(ctx, opts, stdout, stderr)
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) int {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

	engine, err := core.RulesEngineFromEnv()
	if err != nil {
		logger.Error("configure rules", "error", err)
		return exitFailed
	}
	store, err := core.OpenPersistentStore(ctx, engine)
	if err != nil {
		logger.Error("open store", "error", err)
		return exitFailed
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Warn("close store", "error", err)
			}
		}()
	}
	blobs, err := blob.Open(ctx)
	if err != nil {
		logger.Error("open blob store", "error", err)
		return exitFailed
	}

	svcOpts := []core.Option{
		core.WithLogger(logger),
		core.WithStorageDiscarder(core.NewManifestDiscarder(blobs, nil)),
	}
	dump, metricsOpt, err := metricsExporter(opts.metrics, stderr)
	if err != nil {
		logger.Error("configure metrics", "error", err)
		return exitFailed
	}
	if metricsOpt != nil {
		svcOpts = append(svcOpts, metricsOpt)
		defer dump()
	}
	if opts.trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(stderr)))
	}
	svc := core.NewService(store, svcOpts...)

	if opts.seedPath != "" {
		seed, err := readJSON(opts.seedPath, core.DecodeSeed)
		if err != nil {
			logger.Error("read seed", "error", err)
			return exitFailed
		}
		if _, _, err := svc.ApplySeed(ctx, seed); err != nil {
			logger.Error("apply seed", "error", err)
			return exitFailed
		}
	}
	req, err := readJSON(opts.requestPath, decodeRequest)
	if err != nil {
		logger.Error("read request", "error", err)
		return exitFailed
	}

	if opts.validate {
		problems, err := svc.ValidateTransfer(ctx, req)
		if err != nil {
			logger.Error("validate transfer", "error", err)
			return exitFailed
		}
		if err := writeJSON(stdout, problemReport{Problems: problems}); err != nil {
			return exitFailed
		}
		if len(problems) > 0 {
			return exitRejected
		}
		return exitOK
	}

	result, err := svc.PerformTransfer(ctx, domain.User{Username: opts.username}, req)
	var (
		verr *domain.ValidationError
		post *transfer.PostCommitError
	)
	switch {
	case err == nil:
	case errors.As(err, &verr):
		if err := writeJSON(stdout, problemReport{Problems: verr.Problems}); err != nil {
			return exitFailed
		}
		return exitRejected
	case errors.As(err, &post):
		if err := writeJSON(stdout, result); err != nil {
			return exitFailed
		}
		return exitPostCommit
	default:
		return exitFailed
	}
	if err := writeJSON(stdout, result); err != nil {
		return exitFailed
	}
	return exitOK
}

type problemReport struct {
	Problems []string `json:"problems"`
}

func decodeRequest(r io.Reader) (transfer.Request, error) {
	var req transfer.Request
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return transfer.Request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func readJSON[T any](path string, decode func(io.Reader) (T, error)) (out T, err error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return out, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return decode(file)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// metricsExporter returns the recorder option for kind and a function that
// dumps the collected metrics to w.
func metricsExporter(kind string, w io.Writer) (func(), core.Option, error) {
	switch kind {
	case "expvar":
		rec := core.NewExpvarMetricsRecorder("")
		return func() { _ = writeJSON(w, rec.Snapshot()) }, core.WithMetricsRecorder(rec), nil
	case "prometheus":
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, nil, err
		}
		return func() { _ = dumpPrometheus(w, reg) }, core.WithMetricsRecorder(rec), nil
	}
	return func() {}, nil, nil
}

func dumpPrometheus(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
