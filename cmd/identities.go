package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/face-tracker/internal/config"
	"github.com/kozaktomas/face-tracker/internal/registry"
	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List identities in the registry",
	Long: `List all identities the registry knows, in creation order, with their
detection counts and labels.

Examples:
  # List everything
  face-tracker identities

  # Only identities matching a label (diacritics and dashes ignored)
  face-tracker identities --label jan-novak`,
	RunE: runIdentities,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)

	identitiesCmd.Flags().String("label", "", "Filter by normalized label match")
}

func runIdentities(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var identities []registry.Identity
	if label := mustGetString(cmd, "label"); label != "" {
		identities, err = store.FindByLabel(ctx, label)
	} else {
		identities, err = store.List(ctx)
	}
	if err != nil {
		return err
	}

	if len(identities) == 0 {
		fmt.Println("No identities found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLABEL\tDETECTIONS\tREPRESENTATIVE\tCREATED")
	for _, identity := range identities {
		label := identity.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s @ %.1fs\t%s\n",
			identity.ID, label, identity.Count,
			identity.Representative.ClipID, identity.Representative.Timestamp,
			identity.CreatedAt.Format("2006-01-02 15:04"))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing table: %w", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\n%d identities, %d detections, %d labeled\n",
		stats.Identities, stats.Detections, stats.Labeled)
	return nil
}
