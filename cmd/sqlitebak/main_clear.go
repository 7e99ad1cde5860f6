package main

import (
	"github.com/spf13/cobra"

	"github.com/ramonehamilton/sqlite-incbackup/internal/ui"
)

type cmdClear struct {
	cmd    *cobra.Command
	global *cmdGlobal

	flagRemote bool
}

func (c *cmdClear) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "clear"
	cmd.Short = "Delete the manifest and the backup image"
	cmd.Args = noArgs
	cmd.RunE = c.Run
	cmd.Flags().BoolVar(&c.flagRemote, "remote", false, "Also delete the mirrored copy")

	c.cmd = cmd
	return cmd
}

func (c *cmdClear) Run(cmd *cobra.Command, args []string) error {
	err := c.global.Setup()
	if err != nil {
		return err
	}

	engine, closeEngine, err := c.global.Engine(false)
	if err != nil {
		return err
	}
	defer closeEngine()

	err = engine.Clear(cmd.Context())
	if err != nil {
		return err
	}
	ui.Successf("Cleared %s", engine.Unit())

	if !c.flagRemote {
		return nil
	}

	m, err := c.global.Mirror(cmd.Context(), false)
	if err != nil {
		return err
	}
	err = m.Delete(cmd.Context(), engine.Unit())
	if err != nil {
		return err
	}
	ui.Successf("Deleted mirrored copy of %s", engine.Unit().Name)
	return nil
}
