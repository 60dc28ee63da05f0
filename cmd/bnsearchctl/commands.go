package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"bnsearch/internal/attractor"
	"bnsearch/internal/config"
	"bnsearch/pkg/bnsearch"
)

func newGenerateCmd(opts *globalOptions) *cobra.Command {
	netCfg := config.Default().Network
	var (
		seed    int64
		save    bool
		outPath string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a random network and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, opts, func(client *bnsearch.Client) error {
				summary, err := client.Generate(cmd.Context(), bnsearch.GenerateRequest{Network: netCfg, Seed: seed, Save: save})
				if err != nil {
					return err
				}
				doc, err := json.MarshalIndent(summary.Network, "", "  ")
				if err != nil {
					return err
				}
				if outPath != "" {
					if err := os.WriteFile(outPath, append(doc, '\n'), 0o644); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), string(doc))
				}
				if summary.ID != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "network_id=%s\n", summary.ID)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&netCfg.Nodes, "nodes", netCfg.Nodes, "number of nodes")
	f.StringSliceVar(&netCfg.Labels, "labels", nil, "explicit node labels (overrides --nodes)")
	f.IntVar(&netCfg.Arity, "arity", netCfg.Arity, "predecessors per node")
	f.Float64Var(&netCfg.Bias, "bias", netCfg.Bias, "probability that a truth-table entry is true")
	f.BoolVar(&netCfg.Probabilistic, "probabilistic", false, "draw probabilistic truth-table entries")
	f.BoolVar(&netCfg.SelfLoops, "self-loops", false, "allow nodes to read their own state")
	f.BoolVar(&netCfg.RandomInitialState, "random-state", false, "draw a random initial state")
	f.IntVar(&netCfg.Inputs, "inputs", 0, "number of input nodes")
	f.IntVar(&netCfg.Outputs, "outputs", 0, "number of output nodes")
	f.Int64Var(&seed, "seed", 1, "random seed")
	f.BoolVar(&save, "save", false, "store the network and print its id")
	f.StringVar(&outPath, "out", "", "write the network to this file instead of stdout")
	return cmd
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		configPath    string
		seed          int64
		nodes         int
		maxIters      int
		maxFlips      int
		targetScore   float64
		networkID     string
		networkFile   string
		oracleKind    string
		oracleCommand string
		oracleAddress string
		tabu          bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a variable neighborhood search",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("seed") {
				cfg.Seed = seed
			}
			if f.Changed("nodes") {
				cfg.Network.Nodes = nodes
			}
			if f.Changed("max-iters") {
				cfg.Search.MaxIters = maxIters
			}
			if f.Changed("max-flips") {
				cfg.Search.MaxFlips = maxFlips
			}
			if f.Changed("target") {
				cfg.Search.TargetScore = targetScore
			}
			if f.Changed("network-id") {
				cfg.Network.StoredID = networkID
			}
			if f.Changed("network-file") {
				cfg.Network.File = networkFile
			}
			if f.Changed("oracle") {
				cfg.Oracle.Kind = oracleKind
			}
			if f.Changed("oracle-command") {
				cfg.Oracle.Command = oracleCommand
			}
			if f.Changed("oracle-address") {
				cfg.Oracle.Address = oracleAddress
			}
			if f.Changed("tabu") {
				cfg.Search.Tabu = tabu
			}
			if f.Changed("artifacts-dir") || cfg.Artifacts.Dir == "" {
				cfg.Artifacts.Dir = opts.artifactsDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return withClient(cmd, opts, func(client *bnsearch.Client) error {
				summary, err := client.Run(cmd.Context(), cfg)
				if summary.RunID != "" {
					printRunSummary(cmd.OutOrStdout(), summary)
				}
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "run configuration file (YAML or JSON)")
	f.Int64Var(&seed, "seed", 0, "random seed")
	f.IntVar(&nodes, "nodes", 0, "number of nodes to generate")
	f.IntVar(&maxIters, "max-iters", 0, "iteration budget")
	f.IntVar(&maxFlips, "max-flips", 0, "largest neighborhood; -1 for unbounded")
	f.Float64Var(&targetScore, "target", 0, "target score")
	f.StringVar(&networkID, "network-id", "", "start from a stored network")
	f.StringVar(&networkFile, "network-file", "", "start from a JSON or ebnf network file")
	f.StringVar(&oracleKind, "oracle", "", "attractor oracle: builtin|exec|grpc")
	f.StringVar(&oracleCommand, "oracle-command", "", "command for the exec oracle")
	f.StringVar(&oracleAddress, "oracle-address", "", "address of the grpc oracle")
	f.BoolVar(&tabu, "tabu", false, "do not redraw rejected flips until the next acceptance")
	return cmd
}

func printRunSummary(w io.Writer, s bnsearch.RunSummary) {
	fmt.Fprintf(w, "run_id=%s initial_network_id=%s best_network_id=%s\n", s.RunID, s.InitialNetworkID, s.BestNetworkID)
	fmt.Fprintf(w, "score=%g iterations=%d evaluations=%d reason=%s reached=%t\n",
		s.Outcome.Score, s.Outcome.Iteration, s.Outcome.Evaluations, s.Outcome.Reason, s.Outcome.Reached)
	if s.ArtifactsDir != "" {
		fmt.Fprintf(w, "artifacts=%s\n", s.ArtifactsDir)
	}
}

func networkFlags(cmd *cobra.Command, req *bnsearch.NetworkRequest) {
	cmd.Flags().StringVar(&req.ID, "id", "", "stored network id")
	cmd.Flags().StringVar(&req.File, "file", "", "network JSON or ebnf file")
}

func newEBNFCmd(opts *globalOptions) *cobra.Command {
	var req bnsearch.NetworkRequest
	cmd := &cobra.Command{
		Use:   "ebnf",
		Short: "Print a network in the oracle's ebnf grammar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, opts, func(client *bnsearch.Client) error {
				text, err := client.EBNF(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	networkFlags(cmd, &req)
	return cmd
}

func newAttractorsCmd(opts *globalOptions) *cobra.Command {
	req := bnsearch.AttractorsRequest{Oracle: config.Default().Oracle}
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "attractors",
		Short: "List a network's attractors and transition matrix",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, opts, func(client *bnsearch.Client) error {
				report, err := client.Attractors(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				printAttractors(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	networkFlags(cmd, &req.NetworkRequest)
	f := cmd.Flags()
	f.StringVar(&req.Oracle.Kind, "oracle", req.Oracle.Kind, "attractor oracle: builtin|exec|grpc")
	f.StringVar(&req.Oracle.Command, "oracle-command", "", "command for the exec oracle")
	f.StringVar(&req.Oracle.Address, "oracle-address", "", "address of the grpc oracle")
	f.DurationVar(&req.Oracle.Timeout, "oracle-timeout", req.Oracle.Timeout, "per-call oracle timeout")
	f.IntVar(&req.Oracle.Workers, "workers", 0, "builtin oracle workers; 0 uses all CPUs")
	f.BoolVar(&req.ByInput, "by-input", false, "count basins per input assignment")
	f.BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printAttractors(w io.Writer, report bnsearch.AttractorReport) {
	res := report.Result
	if len(res.Labels) > 0 {
		fmt.Fprintf(w, "labels: %s\n", strings.Join(res.Labels, " "))
	}
	for i, a := range res.Attractors {
		fmt.Fprintf(w, "attractor %d period=%d basin=%.4f states=%s\n", i, a.Period(), a.Basin, strings.Join(a.States, ","))
	}
	fmt.Fprintln(w, "atm:")
	for _, row := range res.ATM {
		cells := make([]string, len(row))
		for j, p := range row {
			cells[j] = fmt.Sprintf("%.3f", p)
		}
		fmt.Fprintf(w, "  %s\n", strings.Join(cells, " "))
	}
	if report.Basins != nil {
		fmt.Fprintf(w, "basins by input (%s):\n", strings.Join(report.Basins.Inputs, " "))
		for key, counts := range report.Basins.Counts {
			fmt.Fprintf(w, "  %s %v\n", key, counts)
		}
	}
}

func newRunsCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, opts, func(client *bnsearch.Client) error {
				items, err := client.Runs(cmd.Context(), bnsearch.RunsRequest{Limit: limit})
				if err != nil {
					return err
				}
				for _, item := range items {
					fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s started=%s objective=%s seed=%d iterations=%d score=%g reason=%s reached=%t\n",
						item.RunID, item.StartedAt.Format(time.RFC3339), item.Objective, item.Seed, item.Iterations, item.Score, item.Reason, item.Reached)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	var req bnsearch.ShowRequest
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a run record and its score history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, opts, func(client *bnsearch.Client) error {
				detail, err := client.Show(cmd.Context(), req)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(detail)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.RunID, "run-id", "", "run id")
	f.BoolVar(&req.Latest, "latest", false, "show the newest run")
	f.IntVar(&req.Limit, "limit", 0, "maximum history rows; 0 for all")
	return cmd
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var req bnsearch.ExportRequest
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifacts to the exports directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, opts, func(client *bnsearch.Client) error {
				summary, err := client.Export(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.RunID, "run-id", "", "run id")
	f.BoolVar(&req.Latest, "latest", false, "export the newest run")
	f.StringVar(&req.OutDir, "out", "", "destination root; defaults to --exports-dir")
	return cmd
}

func newReportCmd(opts *globalOptions) *cobra.Command {
	var req bnsearch.ReportRequest
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate score histories of several runs into one curve",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, opts, func(client *bnsearch.Client) error {
				report, err := client.Report(cmd.Context(), req)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "runs=%s\n", strings.Join(report.RunIDs, ","))
				for _, p := range report.Curve {
					fmt.Fprintf(w, "%d mean=%g std=%g min=%g max=%g active=%d\n", p.Iteration, p.Mean, p.Std, p.Min, p.Max, p.Active)
				}
				if report.Path != "" {
					fmt.Fprintf(w, "curve=%s\n", report.Path)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&req.RunIDs, "run-id", nil, "runs to aggregate; defaults to the newest --limit runs")
	f.IntVar(&req.Limit, "limit", 20, "number of newest runs when no run id is given")
	f.IntVar(&req.Step, "step", 1, "iteration sampling step")
	f.StringVar(&req.OutDir, "out", "", "write score_curve.dat into this directory")
	return cmd
}

func newServeOracleCmd() *cobra.Command {
	var (
		listen      string
		metricsAddr string
		maxNodes    int
		workers     int
	)
	cmd := &cobra.Command{
		Use:   "serve-oracle",
		Short: "Serve the builtin attractor oracle over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}
			logger := slog.Default().With(slog.String("component", "oracle-server"))
			server := grpc.NewServer()
			attractor.RegisterOracleServer(server, &attractor.Builtin{MaxNodes: maxNodes, Workers: workers, Logger: logger})

			var metricsServer *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsServer = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics_server_failed", slog.Any("err", err))
					}
				}()
			}

			go func() {
				<-cmd.Context().Done()
				server.GracefulStop()
				if metricsServer != nil {
					_ = metricsServer.Close()
				}
			}()
			logger.Info("oracle_listen", slog.String("addr", lis.Addr().String()))
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", lis.Addr())
			if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&listen, "listen", "127.0.0.1:7070", "listen address")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.IntVar(&maxNodes, "max-nodes", attractor.DefaultMaxNodes, "largest network to analyze")
	f.IntVar(&workers, "workers", 0, "analysis workers; 0 uses all CPUs")
	return cmd
}
