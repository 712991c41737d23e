package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chrysante/scatha-sub006/config"
)

var log = logrus.WithField("stage", "cmd/scatha")

// pipelineConfig holds the config.Pipeline resolved from flags/env/
// scatha.toml by the root command's PersistentPreRunE. One `scatha`
// process resolves its configuration exactly once, so a package-level
// variable (rather than threading a value through cobra's context) is
// the same shape the teacher uses for its own global Debug toggles.
var pipelineConfig *config.Pipeline

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scatha",
		Short:         "Assemble, link, run and inspect scatha programs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return &invocationError{err: err} })

	v, err := config.New(root.PersistentFlags())
	if err != nil {
		// config.New only fails on a malformed scatha.toml; surfacing it
		// eagerly here means every subcommand's RunE can assume pipelineConfig
		// is populated.
		root.RunE = func(*cobra.Command, []string) error { return invocationErrorf("loading config: %w", err) }
		return root
	}

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		p, err := config.Resolve(v)
		if err != nil {
			return invocationErrorf("resolving config: %w", err)
		}
		if p.Debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
		pipelineConfig = p
		return nil
	}

	root.AddCommand(newLinkCmd(), newRunCmd(), newInspectCmd(), newGraphCmd())
	return root
}
