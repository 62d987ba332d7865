package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-tracker",
	Short: "A CLI tool for clustering faces and resolving cross-clip identities",
	Long: `Face Tracker consumes face detections produced by an external
detector, clusters them per clip, and resolves each cluster against a
persistent identity registry, so the same person is recognized across
clips. Resolved identities can then be bound onto transcript atoms.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
