package main

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vub-hpc/buildtools/common/models"
)

func newHistoryCmd(app *App) *cobra.Command {
	var limit int64
	var asJson bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent builds, newest first (needs redis in the site config)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.config.RedisEnabled() {
				return models.NewConfigurationError("no redis address in the site config, build records are not kept")
			}
			store := app.recordStore()
			if store == nil {
				return models.NewConfigurationError("could not connect to redis at %s", app.config.Redis.Address)
			}

			records, listErr := store.List(limit)
			if listErr != nil {
				return listErr
			}
			if asJson {
				content, marshalErr := json.MarshalIndent(records, "", "  ")
				if marshalErr != nil {
					return marshalErr
				}
				cmdOut(app, "%s\n", content)
				return nil
			}
			for _, record := range records {
				printRecord(app, record)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 20, "maximum number of builds to list")
	cmd.Flags().BoolVar(&asJson, "json", false, "JSON output")
	return cmd
}

func printRecord(app *App, record models.BuildRecord) {
	status := "failed"
	switch {
	case record.Mode == models.MODE_DRY_RUN:
		status = "dry-run"
	case record.Mode == models.MODE_SUBMIT:
		status = "queued"
	case record.Success:
		status = "ok"
	}

	jobId := record.SlurmJobId
	if jobId == "" {
		jobId = "-"
	}
	cmdOut(app, "%s  %-7s  %-8s  job=%s  exit=%d  %s on %s for %s",
		record.Time.Local().Format(time.RFC3339), record.Mode, status, jobId, record.ExitCode,
		record.JobName, record.Partition, record.TargetArch)
	if len(record.Modules) > 0 {
		cmdOut(app, "  modules=%s", strings.Join(record.Modules, ","))
	}
	if record.CacheJobError != "" {
		cmdOut(app, "  cache=%q", record.CacheJobError)
	} else if record.CacheJobId != "" {
		cmdOut(app, "  cache=%s", record.CacheJobId)
	}
	cmdOut(app, "\n")
}
