package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ralli",
		Short: "Location-based scavenger races",
		Long: `Ralli runs photo scavenger races: organizers publish a route of
waypoints, teams find them on the ground, verify their position and
upload proof photos that organizers approve or reject live.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(), migrateCmd(), importCmd(), playCmd())
	return cmd
}

func newLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
