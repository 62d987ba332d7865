package cmd

import (
	"fmt"

	"github.com/kozaktomas/face-tracker/internal/config"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <identity-id> <label>",
	Short: "Attach a label to an identity",
	Long: `Attach a human-readable label to an identity, typically a person's
name. Labels are matched ignoring case, diacritics and dashes, so
"jan-novak" finds "Jan Novák".

Example:
  face-tracker label 1b4e28ba-2fa1-11d2-883f-0016d3cca427 "Jan Novák"`,
	Args: cobra.ExactArgs(2),
	RunE: runLabel,
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func runLabel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	store, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	id, label := args[0], args[1]
	if err := store.SetLabel(ctx, id, label); err != nil {
		return err
	}
	fmt.Printf("Labeled identity %s as %q\n", id, label)
	return nil
}
