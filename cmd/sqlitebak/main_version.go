package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/sqlite-incbackup/internal/fingerprint"
	"github.com/ramonehamilton/sqlite-incbackup/internal/incremental"
	"github.com/ramonehamilton/sqlite-incbackup/internal/version"
)

type cmdVersion struct {
	cmd    *cobra.Command
	global *cmdGlobal
}

func (c *cmdVersion) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "version"
	cmd.Short = "Show version information"
	cmd.Args = noArgs
	cmd.RunE = c.Run

	c.cmd = cmd
	return cmd
}

func (c *cmdVersion) Run(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "sqlitebak %s\n", version.String())
	fmt.Fprintf(out, "engine:    %s\n", incremental.VersionLatest)
	fmt.Fprintf(out, "hashes:    %s, %s\n", fingerprint.AlgorithmXXHash64, fingerprint.AlgorithmFNV1a64)
	return nil
}
