package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/vub-hpc/buildtools/common/models"
	"k8s.io/klog/v2"
)

func newReapCmd(app *App) *cobra.Command {
	var maxAgeHours int64
	var pageSize int64
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Delete build records that are older than --maxage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.config.RedisEnabled() {
				return models.NewConfigurationError("no redis address in the site config, build records are not kept")
			}
			store := app.recordStore()
			if store == nil {
				return models.NewConfigurationError("could not connect to redis at %s", app.config.Redis.Address)
			}

			startTime := time.Now()
			cutoffTime := startTime.Add(-time.Duration(maxAgeHours) * time.Hour)
			klog.Infof("Dryrun is %t, cutoff time is %s", dryRun, cutoffTime.Format(time.RFC3339))

			removed, reapErr := store.Reap(cutoffTime, pageSize, dryRun)
			if reapErr != nil {
				return reapErr
			}
			klog.Infof("Reaping run completed, took %s", time.Since(startTime))
			cmdOut(app, "%d\n", removed)
			return nil
		},
	}
	cmd.Flags().Int64Var(&maxAgeHours, "maxage", 24*90, "delete build records older than this many hours")
	cmd.Flags().Int64Var(&pageSize, "pagesize", 100, "pull this many records from the database at once")
	cmd.Flags().BoolVar(&dryRun, "dryrun", true, "don't actually delete anything")
	return cmd
}
