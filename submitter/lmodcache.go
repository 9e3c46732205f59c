package main

import (
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newLmodCacheCmd(app *App) *cobra.Command {
	var partitions []string
	var dependsOn []string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "lmod-cache",
		Short: "Refresh the Lmod cache, no software installation",
		Long: `Submit an Lmod cache update job for every default architecture, or for the given partitions.
Jobs for the same architecture are serialised with a singleton dependency.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				raiseVerbosity()
			}
			if len(partitions) == 0 {
				for _, arch := range app.topology.DefaultArchs() {
					def, _ := app.topology.Arch(arch)
					partitions = append(partitions, def.Partition.Cpu)
				}
			}
			klog.V(1).Infof("Refreshing Lmod cache on partitions %v", partitions)

			builder, builderErr := app.Builder(dryRun, false)
			if builderErr != nil {
				return builderErr
			}
			results, subErr := builder.SubmitCacheJobs(app.ctx, partitions, dependsOn)
			for _, result := range results {
				if result.JobId != "" {
					cmdOut(app, "%s %s\n", result.JobId, result.Cluster)
				}
			}
			return subErr
		},
	}
	cmd.Flags().StringSliceVarP(&partitions, "partition", "P", nil, "partition to refresh the cache for (can be repeated, default is the cpu partition of every default arch)")
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "job ids that have to complete successfully before the cache is refreshed")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "D", false, "only show the submission commands")
	return cmd
}
