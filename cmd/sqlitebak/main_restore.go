package main

import (
	"github.com/spf13/cobra"

	"github.com/ramonehamilton/sqlite-incbackup/internal/ui"
)

type cmdRestore struct {
	cmd    *cobra.Command
	global *cmdGlobal

	flagReference string
}

func (c *cmdRestore) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "restore"
	cmd.Short = "Replace the database with the backup image"
	cmd.Long = `Description:
  Replace the database with the backup image

  The manifest's meta-fingerprint and the first page of the reference
  database are checked before the database is touched. The reference
  defaults to the database being restored.`
	cmd.Args = noArgs
	cmd.RunE = c.Run
	cmd.Flags().StringVar(&c.flagReference, "reference", "", "Database whose first page must match the backup"+"``")

	c.cmd = cmd
	return cmd
}

func (c *cmdRestore) Run(cmd *cobra.Command, args []string) error {
	err := c.global.Setup()
	if err != nil {
		return err
	}

	dst, err := c.global.openDB(c.global.config.Database.Path, false)
	if err != nil {
		return err
	}
	defer dst.Close()

	ref := dst
	if c.flagReference != "" && c.flagReference != dst.Path() {
		ref, err = c.global.openDB(c.flagReference, true)
		if err != nil {
			return err
		}
		defer ref.Close()
	}

	engine, closeEngine, err := c.global.Engine(false)
	if err != nil {
		return err
	}
	defer closeEngine()

	err = engine.Restore(cmd.Context(), dst.Source(), ref.Source())
	if err != nil {
		return err
	}

	ui.Successf("Restored %s from %s", dst.Path(), engine.Unit())
	return nil
}
