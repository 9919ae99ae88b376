package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "trader",
		Short:        "Token sale exchange priced by a Chainlink feed",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the exchange HTTP API",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("rpc", "", "JSON-RPC URL; empty uses an in-process mock feed")
	serveCmd.Flags().String("feed", "", "Chainlink aggregator address")
	serveCmd.Flags().String("mock-price", "3800", "mock feed USD price when no rpc is set")
	serveCmd.Flags().String("owner", "", "exchange owner address")
	serveCmd.Flags().String("trader-address", "0x0000000000000000000000000000000000007ade", "exchange address (event emitter, minter)")
	serveCmd.Flags().String("token-address", "0x000000000000000000000000000000000000703e", "token ledger address")
	serveCmd.Flags().String("token-name", "Test Token", "token name")
	serveCmd.Flags().String("token-symbol", "TT", "token symbol")
	serveCmd.Flags().String("journal", "./data/events.jsonl", "event journal JSONL path, empty disables")
	serveCmd.Flags().String("state-file", "", "snapshot file path")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for journal and snapshots")
	serveCmd.Flags().String("state-name", "trader", "snapshot row name in Postgres")
	serveCmd.Flags().String("metrics-namespace", "trader", "prometheus namespace")
	serveCmd.Flags().Int("max-retries", 5, "maximum oracle retry attempts")
	serveCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial oracle retry backoff")
	serveCmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Read and validate the latest feed price",
		RunE:  runPrice,
	}
	addFeedFlags(priceCmd)
	root.AddCommand(priceCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Compute the token amount a payment buys",
		RunE:  runQuote,
	}
	addFeedFlags(quoteCmd)
	quoteCmd.Flags().String("value", "1", "payment in ether")
	quoteCmd.Flags().String("token-price", "2.00", "unit token price in USD")
	root.AddCommand(quoteCmd)

	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Decode an event journal",
		RunE:  runEvents,
	}
	eventsCmd.Flags().String("journal", "./data/events.jsonl", "event journal JSONL path")
	eventsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(eventsCmd)

	roundsCmd := &cobra.Command{
		Use:   "rounds",
		Short: "Index AnswerUpdated rounds of a Chainlink aggregator",
		RunE:  runRounds,
	}
	roundsCmd.Flags().String("rpc", "", "JSON-RPC URL")
	roundsCmd.Flags().String("feed", "", "Chainlink aggregator address")
	roundsCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	roundsCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	roundsCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	roundsCmd.Flags().String("out", "./data/rounds.jsonl", "output JSONL path")
	roundsCmd.Flags().String("pg-dsn", "", "Postgres DSN; rounds go to Postgres instead of JSONL")
	roundsCmd.Flags().String("checkpoint", "./data/rounds.checkpoint.json", "checkpoint file path")
	roundsCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	roundsCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	roundsCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	roundsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(roundsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addFeedFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "JSON-RPC URL")
	cmd.Flags().String("feed", "", "Chainlink aggregator address")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
