package main

import (
	"github.com/spf13/cobra"

	"github.com/ramonehamilton/sqlite-incbackup/internal/ui"
)

type cmdVerify struct {
	cmd    *cobra.Command
	global *cmdGlobal
}

func (c *cmdVerify) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "verify"
	cmd.Short = "Check the backup against its manifest"
	cmd.Long = `Description:
  Check the backup against its manifest

  Every page of the image is fingerprinted and compared with the manifest,
  and the image is opened as a database for an integrity check. No live
  database is needed.`
	cmd.Args = noArgs
	cmd.RunE = c.Run

	c.cmd = cmd
	return cmd
}

func (c *cmdVerify) Run(cmd *cobra.Command, args []string) error {
	err := c.global.Setup()
	if err != nil {
		return err
	}

	engine, closeEngine, err := c.global.Engine(false)
	if err != nil {
		return err
	}
	defer closeEngine()

	report, err := engine.Verify(cmd.Context())
	if err != nil {
		ui.Errorf("Backup %s failed verification", engine.Unit())
		return err
	}

	ui.Successf("Backup %s is consistent", engine.Unit())
	ui.Field("Pages", ui.CountText(report.Pages))
	ui.Field("Page size", report.PageSize)
	ui.Field("Image blocks", report.Blocks)
	ui.Field("Meta", ui.DimText(report.Meta.String()))
	return nil
}
