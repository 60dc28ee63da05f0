package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"bnsearch/internal/storage"
	"bnsearch/pkg/bnsearch"
)

type globalOptions struct {
	storeKind    string
	dbPath       string
	artifactsDir string
	exportsDir   string
	logLevel     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "bnsearchctl",
		Short:         "Search Boolean networks for target attractor landscapes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, err := parseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.storeKind, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	flags.StringVar(&opts.dbPath, "db-path", "bnsearch.db", "sqlite database path")
	flags.StringVar(&opts.artifactsDir, "artifacts-dir", "benchmarks", "run artifact root")
	flags.StringVar(&opts.exportsDir, "exports-dir", "exports", "export destination root")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug|info|warn|error")

	root.AddCommand(
		newGenerateCmd(opts),
		newRunCmd(opts),
		newEBNFCmd(opts),
		newAttractorsCmd(opts),
		newRunsCmd(opts),
		newShowCmd(opts),
		newExportCmd(opts),
		newReportCmd(opts),
		newServeOracleCmd(),
	)
	return root
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// withClient opens a client for one command and closes it afterwards.
func withClient(cmd *cobra.Command, opts *globalOptions, fn func(*bnsearch.Client) error) error {
	client, err := bnsearch.New(bnsearch.Options{
		StoreKind:    opts.storeKind,
		DBPath:       opts.dbPath,
		ArtifactsDir: opts.artifactsDir,
		ExportsDir:   opts.exportsDir,
		Logger:       slog.Default().With(slog.String("component", "bnsearchctl")),
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(cmd.Context()); err != nil {
		return err
	}
	return fn(client)
}
