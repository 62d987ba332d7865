package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-tracker/internal/config"
	"github.com/kozaktomas/face-tracker/internal/faces"
	"github.com/kozaktomas/face-tracker/internal/resolver"
	"github.com/kozaktomas/face-tracker/internal/source"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <clip-file>...",
	Short: "Resolve clips against the identity registry",
	Long: `Cluster each clip's face detections and resolve the clusters against
the identity registry: known people are merged, new people get a fresh
identity. Each argument is a detector-exported clip JSON file.

With --from-detector, arguments are clip IDs read straight from the
detector service's MariaDB (DETECTOR_DATABASE_URL) instead of files.

Examples:
  # Resolve exported clip files
  face-tracker resolve clips/ep01.json clips/ep02.json

  # Resolve clips directly from the detector database
  face-tracker resolve --from-detector ep01 ep02`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().Bool("from-detector", false, "Treat arguments as clip IDs and read detections from the detector database")
	resolveCmd.Flags().Float64("threshold", 0, "Override the identity match threshold")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Database.HNSWIndexPath != "" {
		initIndex(ctx, store, cfg.Database.HNSWIndexPath)
		defer func() {
			if err := store.SaveIndex(); err != nil {
				fmt.Printf("Warning: failed to save identity HNSW index: %v\n", err)
			}
		}()
	}

	threshold := cfg.Registry.MatchThreshold
	if override := mustGetFloat64(cmd, "threshold"); override > 0 {
		threshold = override
	}
	res := resolver.New(store, resolver.Config{
		Dim:            cfg.Embedding.Dim,
		Eps:            cfg.Cluster.Eps,
		MinSamples:     cfg.Cluster.MinSamples,
		MatchThreshold: threshold,
		DedupeIoU:      cfg.Cluster.DedupeIoU,
	})

	load, closeSource, err := detectionLoader(cfg, mustGetBool(cmd, "from-detector"))
	if err != nil {
		return err
	}
	defer closeSource()

	bar := progressbar.Default(int64(len(args)), "resolving clips")
	var created, matched int
	for _, arg := range args {
		clipID, detections, err := load(ctx, arg)
		if err != nil {
			return err
		}
		result, err := res.ResolveClip(ctx, clipID, detections)
		if err != nil {
			return err
		}
		created += result.IdentitiesCreated
		matched += result.IdentitiesMatched
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Printf("Resolved %d clips: %d new identities, %d matched to existing ones\n",
		len(args), created, matched)
	return nil
}

// detectionLoader returns a function mapping one argument to a clip's
// detections, either from an exported file or the detector database.
func detectionLoader(cfg *config.Config, fromDetector bool) (func(context.Context, string) (string, []faces.Detection, error), func(), error) {
	if !fromDetector {
		load := func(_ context.Context, path string) (string, []faces.Detection, error) {
			clip, err := source.LoadClipFile(path)
			if err != nil {
				return "", nil, err
			}
			return clip.ClipID, clip.Detections, nil
		}
		return load, func() {}, nil
	}

	db, err := source.NewDetectorDB(cfg.Detector.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	load := func(ctx context.Context, clipID string) (string, []faces.Detection, error) {
		detections, err := db.Detections(ctx, clipID)
		if err != nil {
			return "", nil, err
		}
		return clipID, detections, nil
	}
	return load, func() { _ = db.Close() }, nil
}
