// Package cli wires the heap dump retention analyzer's pipeline stages
// (parse, build graph, compute dominators, aggregate, report) into a
// single cobra command.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/heapdom/retain/internal/archive"
	"github.com/heapdom/retain/internal/config"
	"github.com/heapdom/retain/internal/heapdump/dominator"
	"github.com/heapdom/retain/internal/heapdump/graph"
	"github.com/heapdom/retain/internal/heapdump/parser"
	"github.com/heapdom/retain/internal/heapdump/record"
	"github.com/heapdom/retain/internal/heapdump/report"
	"github.com/heapdom/retain/internal/heapdump/retention"
	"github.com/heapdom/retain/internal/history"
	apperrors "github.com/heapdom/retain/pkg/errors"
	"github.com/heapdom/retain/pkg/telemetry"
	"github.com/heapdom/retain/pkg/utils"
)

var (
	verbose      bool
	configPath   string
	rerootAddr   string
	topN         int
	dotPath      string
	flamePath    string
	historyDB    string
	uploadBucket string
	otlpEndpoint string

	logger utils.Logger
)

// rootCmd is the single analysis command; the dump file is its only
// positional argument.
var rootCmd = &cobra.Command{
	Use:   "heapdom <dump-file>",
	Short: "Analyze a heap dump's retention tree",
	Long: `heapdom ingests a Ruby-style ObjectSpace.dump_all JSON-lines heap dump
and reports which objects, and which classes of objects, are retaining the
most memory, by building a dominator tree over the heap's reference graph.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := utils.LevelInfo
		if verbose {
			level = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(level, os.Stderr)
		return nil
	},
	RunE: runAnalyze,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("%v", err)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return apperrors.ExitCode(err)
	}
	return 0
}

func init() {
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return apperrors.Wrap(apperrors.CodeBadFlag, "invalid flags", err)
	})
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.Flags().StringVar(&configPath, "config", "", "optional viper config file (YAML/JSON/TOML)")
	rootCmd.Flags().StringVarP(&rerootAddr, "reroot", "r", "", "re-root analysis at this object address (e.g. 0x7f83df87dc40)")
	rootCmd.Flags().IntVarP(&topN, "top", "n", 0, "number of top entries per ranking (0 = unlimited)")
	rootCmd.Flags().StringVarP(&dotPath, "dot", "d", "", "write the pruned dominator graph visualization to this path")
	rootCmd.Flags().StringVarP(&flamePath, "flamegraph", "f", "", "write the flame-graph data file to this path")
	rootCmd.Flags().StringVar(&historyDB, "history-db", "", "path to a local run-history database (empty disables history)")
	rootCmd.Flags().StringVar(&uploadBucket, "upload-bucket", "", "Tencent COS bucket to archive output artifacts to (empty disables upload)")
	rootCmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP collector endpoint for pipeline tracing (empty disables export)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	dumpPath := args[0]

	if topN < 0 {
		return apperrors.Newf(apperrors.CodeBadFlag, "--top must be non-negative, got %d", topN)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeBadFlag, "failed to load configuration", err)
	}
	applyFlagOverrides(cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := telemetry.InitWithConfig(ctx, telemetryConfig(cfg))
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing: %v", err)
		shutdown = func(context.Context) error { return nil }
	}
	defer shutdown(ctx)

	tracer := otel.Tracer("heapdom")
	ctx, rootSpan := tracer.Start(ctx, "run")
	defer rootSpan.End()

	f, err := os.Open(dumpPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeMalformedInput, "failed to open dump file", err)
	}
	defer f.Close()

	builder := graph.NewBuilder()
	p := parser.NewParser(&parser.Options{StrictMode: cfg.Analysis.StrictMode, MaxLineBytes: parser.DefaultMaxLineBytes})

	parseCtx, parseSpan := tracer.Start(ctx, "parse")
	err = p.Each(parseCtx, f, func(r record.Record) error {
		switch rec := r.(type) {
		case *record.ObjectRecord:
			builder.AddObject(rec)
		case *record.RootRecord:
			builder.AddRoot(rec)
		}
		return nil
	})
	parseSpan.End()
	if err != nil {
		return err
	}
	logger.Info("parsed dump: %d lines read, %d records skipped", p.Stats.LinesRead, p.Stats.RecordsSkipped)

	_, buildSpan := tracer.Start(ctx, "build-graph")
	g := builder.Finalize()
	buildSpan.End()
	logger.Info("built graph: %d nodes, %d duplicate objects, %d unknown references", g.NodeCount(), g.Stats.DuplicateObjects, g.Stats.UnknownReferences)

	rerootIdx := graph.RootIndex
	if rerootAddr != "" {
		addr, perr := parseAddressFlag(rerootAddr)
		if perr != nil {
			return apperrors.Wrap(apperrors.CodeBadFlag, "invalid --reroot address", perr)
		}
		idx, ok := g.IndexOf(addr)
		if !ok {
			return apperrors.Newf(apperrors.CodeUnknownReroot, "no object at address %s", rerootAddr)
		}
		rerootIdx = idx
	}

	_, domSpan := tracer.Start(ctx, "compute-dominators")
	tree := dominator.Compute(g, graph.RootIndex)
	domSpan.End()

	// The leaked-out report needs whole-graph dominance: a node the
	// re-root can reach but does not dominate must stay attributed to its
	// real retainer, so the subtree analysis restricts this tree rather
	// than recomputing dominators from the re-root.
	aggCtx, aggSpan := tracer.Start(ctx, "aggregate")
	result := retention.ComputeWithWorkers(aggCtx, g, tree, report.NodeLabel(g), cfg.Analysis.MaxWorker)
	var sub *retention.Subtree
	if rerootAddr != "" {
		sub = retention.ComputeSubtree(g, tree, result.NodeStats, rerootIdx, report.NodeLabel(g))
	}
	aggSpan.End()

	_, reportSpan := tracer.Start(ctx, "report")
	artifacts, err := writeReports(g, tree, result, sub, cfg)
	reportSpan.End()
	if err != nil {
		return err
	}

	if cfg.History.Enabled {
		if herr := recordHistory(ctx, cfg, dumpPath, result, int64(g.NodeCount())); herr != nil {
			logger.Warn("failed to record run history: %v", herr)
		}
	}

	if cfg.Archive.Enabled {
		if aerr := uploadArtifacts(ctx, cfg, artifacts); aerr != nil {
			logger.Warn("failed to archive report artifacts: %v", aerr)
		}
	}

	return nil
}

func recordHistory(ctx context.Context, cfg *config.Config, dumpPath string, result *retention.Result, nodeCount int64) error {
	store, err := history.Open(cfg.History.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = store.RecordRun(ctx, dumpPath, rerootAddr, nodeCount, result)
	return err
}

func uploadArtifacts(ctx context.Context, cfg *config.Config, artifacts archive.Artifacts) error {
	if artifacts.SummaryPath == "" && artifacts.DOTPath == "" && artifacts.FlamegraphPath == "" {
		return nil
	}

	a, err := archive.NewArchiver(&archive.Config{
		Bucket:    cfg.Archive.Bucket,
		Region:    cfg.Archive.Region,
		SecretID:  cfg.Archive.SecretID,
		SecretKey: cfg.Archive.SecretKey,
		Domain:    cfg.Archive.Domain,
		Scheme:    cfg.Archive.Scheme,
	})
	if err != nil {
		return err
	}

	runID := fmt.Sprintf("%d", time.Now().UnixNano())
	result, err := a.UploadRun(ctx, runID, artifacts)
	if err != nil {
		return err
	}

	if result.SummaryURL != "" {
		logger.Info("archived summary to %s", result.SummaryURL)
	}
	if result.DOTURL != "" {
		logger.Info("archived dot graph to %s", result.DOTURL)
	}
	if result.FlamegraphURL != "" {
		logger.Info("archived flamegraph to %s", result.FlamegraphURL)
	}
	return nil
}

func applyFlagOverrides(cfg *config.Config) {
	if topN != 0 {
		cfg.Analysis.TopN = topN
	}
	if historyDB != "" {
		cfg.History.Enabled = true
		cfg.History.DBPath = historyDB
	}
	if uploadBucket != "" {
		cfg.Archive.Enabled = true
		cfg.Archive.Bucket = uploadBucket
	}
	if otlpEndpoint != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.OTLPEndpoint = otlpEndpoint
	}
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	protocol := "grpc"
	if strings.HasPrefix(cfg.Telemetry.OTLPEndpoint, "http://") || strings.HasPrefix(cfg.Telemetry.OTLPEndpoint, "https://") {
		protocol = "http/protobuf"
	}
	return &telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Protocol:    protocol,
		Insecure:    cfg.Telemetry.OTLPInsecure,
		Sampler:     "always_on",
	}
}

func writeReports(g *graph.Graph, tree *dominator.Tree, result *retention.Result, sub *retention.Subtree, cfg *config.Config) (archive.Artifacts, error) {
	var artifacts archive.Artifacts

	// When the run's artifacts are going to be archived, tee the summary
	// into a local file as well so the upload has something to read.
	summaryOut := io.Writer(os.Stdout)
	if cfg.Archive.Enabled {
		if err := os.MkdirAll(cfg.Analysis.OutputDir, 0o755); err != nil {
			return artifacts, apperrors.Wrap(apperrors.CodeOutputFailure, "failed to create output directory", err)
		}
		summaryPath := filepath.Join(cfg.Analysis.OutputDir, "summary.txt")
		f, err := os.Create(summaryPath)
		if err != nil {
			return artifacts, apperrors.Wrap(apperrors.CodeOutputFailure, "failed to create summary file", err)
		}
		defer f.Close()
		summaryOut = io.MultiWriter(os.Stdout, f)
		artifacts.SummaryPath = summaryPath
	}

	formatter := report.NewFormatter(summaryOut)
	if sub != nil {
		if err := formatter.WriteSubtreeSummary(sub, cfg.Analysis.TopN); err != nil {
			return artifacts, apperrors.Wrap(apperrors.CodeOutputFailure, "failed to write subtree summary", err)
		}
	} else {
		if err := formatter.WriteSummary(result, cfg.Analysis.TopN); err != nil {
			return artifacts, apperrors.Wrap(apperrors.CodeOutputFailure, "failed to write summary", err)
		}
	}

	// A re-rooted run scopes every artifact, not just the text summary:
	// the DOT and flame files render the chosen node's dominator subtree.
	graphRoot := tree.Root
	retainers := result.Retainers
	if sub != nil {
		graphRoot = sub.Root
		retainers = sub.Retainers
	}

	if dotPath != "" {
		out, err := os.Create(dotPath)
		if err != nil {
			return artifacts, apperrors.Wrap(apperrors.CodeOutputFailure, "failed to create dot file", err)
		}
		n, e, werr := report.NewDOTWriter().Write(g, tree, graphRoot, retention.TopNRetainers(retainers, cfg.Analysis.TopN), out)
		out.Close()
		if werr != nil {
			return artifacts, apperrors.Wrap(apperrors.CodeOutputFailure, "failed to write dot file", werr)
		}
		fmt.Printf("Wrote %d nodes & %d edges to %s\n", n, e, dotPath)
		artifacts.DOTPath = dotPath
	}

	if flamePath != "" {
		out, err := os.Create(flamePath)
		if err != nil {
			return artifacts, apperrors.Wrap(apperrors.CodeOutputFailure, "failed to create flamegraph file", err)
		}
		werr := report.NewFlameWriter().Write(g, tree, graphRoot, out)
		out.Close()
		if werr != nil {
			return artifacts, apperrors.Wrap(apperrors.CodeOutputFailure, "failed to write flamegraph file", werr)
		}
		artifacts.FlamegraphPath = flamePath
	}

	return artifacts, nil
}

func parseAddressFlag(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	var addr uint64
	_, err := fmt.Sscanf(trimmed, "%x", &addr)
	return addr, err
}
