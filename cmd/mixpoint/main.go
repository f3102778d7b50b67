// Command mixpoint runs the mix session service and its maintenance tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/justestif/go-mixpoint/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig is swapped out in tests.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mixpoint",
		Short:         "Mixpoint keeps DJ mix sessions: loaded tracks, tempos and saved mixes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newStateCmd(),
		newTracksCmd(),
		newLoadCmd(),
	)
	return root
}

// withApp loads the configuration, builds the app and runs fn with it.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
