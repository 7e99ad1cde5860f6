package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/sqlite-incbackup/internal/mirror"
	"github.com/ramonehamilton/sqlite-incbackup/internal/ui"
)

// Mirror connects to the configured object storage. ensureBucket creates
// the bucket when it is missing.
func (c *cmdGlobal) Mirror(ctx context.Context, ensureBucket bool) (*mirror.Mirror, error) {
	mc := c.config.Mirror
	if !mc.Enabled {
		return nil, usagef("the mirror is not configured (mirror.enabled)")
	}

	client, err := mirror.NewMinioClient(mirror.MinioOptions{
		Endpoint:  mc.Endpoint,
		AccessKey: mc.AccessKey,
		SecretKey: mc.SecretKey,
		Region:    mc.Region,
		UseSSL:    mc.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	store := mirror.NewMinioStore(client, mc.Bucket, mc.Prefix)
	if ensureBucket {
		if err := store.EnsureBucket(ctx, mc.Region); err != nil {
			return nil, err
		}
	}
	return mirror.New(store, c.hash, c.logger), nil
}

type cmdPush struct {
	cmd    *cobra.Command
	global *cmdGlobal
}

func (c *cmdPush) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "push"
	cmd.Short = "Upload the backup to object storage"
	cmd.Args = noArgs
	cmd.RunE = c.Run

	c.cmd = cmd
	return cmd
}

func (c *cmdPush) Run(cmd *cobra.Command, args []string) error {
	err := c.global.Setup()
	if err != nil {
		return err
	}

	m, err := c.global.Mirror(cmd.Context(), true)
	if err != nil {
		return err
	}

	err = m.Push(cmd.Context(), c.global.unit)
	if err != nil {
		return err
	}

	ui.Successf("Pushed %s to %s", c.global.unit, c.global.config.Mirror.Bucket)
	return nil
}

type cmdPull struct {
	cmd    *cobra.Command
	global *cmdGlobal
}

func (c *cmdPull) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "pull"
	cmd.Short = "Download the backup from object storage"
	cmd.Long = `Description:
  Download the backup from object storage

  The remote manifest must pass its meta-fingerprint check before it
  replaces the local copy.`
	cmd.Args = noArgs
	cmd.RunE = c.Run

	c.cmd = cmd
	return cmd
}

func (c *cmdPull) Run(cmd *cobra.Command, args []string) error {
	err := c.global.Setup()
	if err != nil {
		return err
	}

	m, err := c.global.Mirror(cmd.Context(), false)
	if err != nil {
		return err
	}

	err = m.Pull(cmd.Context(), c.global.unit)
	if err != nil {
		return err
	}

	ui.Successf("Pulled %s from %s", c.global.unit, c.global.config.Mirror.Bucket)
	return nil
}
