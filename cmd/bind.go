package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/face-tracker/internal/atoms"
	"github.com/kozaktomas/face-tracker/internal/config"
	"github.com/kozaktomas/face-tracker/internal/registry"
	"github.com/kozaktomas/face-tracker/internal/resolver"
	"github.com/kozaktomas/face-tracker/internal/source"
	"github.com/spf13/cobra"
)

var bindCmd = &cobra.Command{
	Use:   "bind <clip-file>",
	Short: "Resolve a clip and bind its identities onto transcript atoms",
	Long: `Resolve one clip's detections against the identity registry, then
annotate the clip's atoms with the identities visible in each time
range. The enriched atoms are written as JSON to stdout or --output.

With --ephemeral the clip resolves against a throwaway in-memory
registry instead of PostgreSQL, useful to preview binding without
touching persistent state.

Examples:
  # Bind against the persistent registry
  face-tracker bind clips/ep01.json --output enriched/ep01.json

  # Preview without a database
  face-tracker bind clips/ep01.json --ephemeral`,
	Args: cobra.ExactArgs(1),
	RunE: runBind,
}

func init() {
	rootCmd.AddCommand(bindCmd)

	bindCmd.Flags().String("output", "", "Write enriched atoms to a file instead of stdout")
	bindCmd.Flags().Bool("ephemeral", false, "Use a throwaway in-memory registry instead of PostgreSQL")
}

func runBind(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	clip, err := source.LoadClipFile(args[0])
	if err != nil {
		return err
	}
	if len(clip.Atoms) == 0 {
		return fmt.Errorf("clip file %s has no atoms to bind", args[0])
	}

	var store registry.Store
	if mustGetBool(cmd, "ephemeral") {
		store = registry.NewMemory(cfg.Embedding.Dim)
	} else {
		pgStore, cleanup, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		store = pgStore
	}

	res := resolver.New(store, resolver.Config{
		Dim:            cfg.Embedding.Dim,
		Eps:            cfg.Cluster.Eps,
		MinSamples:     cfg.Cluster.MinSamples,
		MatchThreshold: cfg.Registry.MatchThreshold,
		DedupeIoU:      cfg.Cluster.DedupeIoU,
	})

	result, err := res.ResolveClip(ctx, clip.ClipID, clip.Detections)
	if err != nil {
		return err
	}

	occurrences := make([]atoms.Occurrence, 0, len(result.Assignments))
	for _, a := range result.Assignments {
		occurrences = append(occurrences, atoms.Occurrence{
			IdentityID: a.IdentityID,
			Timestamp:  a.Detection.Timestamp,
			Confidence: a.Detection.Confidence,
		})
	}

	bound, err := atoms.Bind(clip.Atoms, occurrences)
	if err != nil {
		return err
	}

	out := os.Stdout
	if path := mustGetString(cmd, "output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(map[string]any{"clip_id": clip.ClipID, "atoms": bound}); err != nil {
		return fmt.Errorf("writing enriched atoms: %w", err)
	}
	return nil
}
