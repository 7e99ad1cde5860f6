package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/sqlite-incbackup/internal/catalog"
	"github.com/ramonehamilton/sqlite-incbackup/internal/ui"
)

type cmdHistory struct {
	cmd    *cobra.Command
	global *cmdGlobal

	flagLimit int
	flagAll   bool
}

func (c *cmdHistory) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "history"
	cmd.Short = "Show recorded runs"
	cmd.Args = noArgs
	cmd.RunE = c.Run
	cmd.Flags().IntVar(&c.flagLimit, "limit", catalog.DefaultLimit, "Maximum number of runs to show"+"``")
	cmd.Flags().BoolVar(&c.flagAll, "all", false, "Show runs for every backup in the workspace")

	c.cmd = cmd
	return cmd
}

func (c *cmdHistory) Run(cmd *cobra.Command, args []string) error {
	err := c.global.Setup()
	if err != nil {
		return err
	}
	if !c.global.config.Backup.Catalog {
		return usagef("the run catalog is disabled (backup.catalog)")
	}

	cat, err := c.global.openCatalog(false)
	if err != nil {
		return err
	}
	if cat == nil {
		ui.Infof("No runs recorded in %s", c.global.unit.Dir)
		return nil
	}
	defer cat.Close()

	name := c.global.unit.Name
	if c.flagAll {
		name = ""
	}
	entries, err := cat.List(cmd.Context(), name, c.flagLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		ui.Infof("No runs recorded in %s", c.global.unit.Dir)
		return nil
	}

	ui.Header(fmt.Sprintf("Runs (%d)", len(entries)))
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-8s %-12s %8s  scanned=%d written=%d",
			e.StartedAt.Local().Format(time.DateTime), e.Operation, e.Name,
			e.Duration.Round(time.Millisecond), e.PagesScanned, e.PagesWritten)
		if e.Succeeded() {
			ui.Success(line)
		} else {
			ui.Errorf("%s  code=%d %s", line, e.Code, e.Message)
		}
	}
	return nil
}
