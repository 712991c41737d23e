package main

import (
	"github.com/spf13/cobra"

	"github.com/chrysante/scatha-sub006/link"
)

func newLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <program.sprog>",
		Short: "Resolve an assembled program's unresolved symbols and write a linked binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := pipelineConfig
			prog, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			code, err := link.Link(prog, link.Options{
				Libraries:  p.LibSearchPaths,
				HostSearch: p.HostSearch,
			})
			if err != nil {
				log.WithError(err).Warn("link failed")
				return err
			}
			out := p.Output
			if !p.BinaryOnly {
				log.Debug("writing self-executing wrapper is not implemented; writing .sbin instead")
			}
			if err := saveBinary(out, code); err != nil {
				return err
			}
			cmd.Printf("linked %s (%d bytes)\n", out, len(code))
			return nil
		},
	}
	return cmd
}
