package main

import (
	"github.com/spf13/cobra"

	"github.com/chrysante/scatha-sub006/vm"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <program.sbin>",
		Short: "Execute a linked binary to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := loadBinary(args[0])
			if err != nil {
				return err
			}
			machine, err := vm.New(code)
			if err != nil {
				return invocationErrorf("decoding %s: %w", args[0], err)
			}
			if err := machine.Run(); err != nil {
				log.WithError(err).Warn("program raised a runtime exception")
				return err
			}
			cmd.Printf("exit code: %d\n", machine.ExitCode)
			return nil
		},
	}
	return cmd
}
