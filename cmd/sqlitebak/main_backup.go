package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/sqlite-incbackup/internal/ui"
)

type cmdBackup struct {
	cmd    *cobra.Command
	global *cmdGlobal
}

func (c *cmdBackup) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "backup"
	cmd.Short = "Back up changed pages into the backup image"
	cmd.Args = noArgs
	cmd.RunE = c.Run

	c.cmd = cmd
	return cmd
}

func (c *cmdBackup) Run(cmd *cobra.Command, args []string) error {
	err := c.global.Setup()
	if err != nil {
		return err
	}

	db, err := c.global.openDB(c.global.config.Database.Path, true)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, closeEngine, err := c.global.Engine(true)
	if err != nil {
		return err
	}
	defer closeEngine()

	stats, err := engine.Backup(cmd.Context(), db.Source())
	if err != nil {
		return err
	}

	ui.Successf("Backed up %s", engine.Unit())
	ui.Field("Pages scanned", stats.PagesScanned)
	ui.Field("Pages written", ui.CountText(stats.PagesWritten))
	ui.Field("New / changed", fmt.Sprintf("%d / %d", stats.PagesNew, stats.PagesChanged))
	ui.Field("Bytes written", stats.BytesWritten)
	ui.Field("Meta", ui.DimText(stats.Meta.String()))
	ui.Field("Duration", stats.Duration.Round(time.Millisecond))
	return nil
}
