package main

import (
	"flag"

	"github.com/spf13/cobra"
	"github.com/vub-hpc/buildtools/common/build"
	"k8s.io/klog/v2"
)

/**
flags shared by render and submit, they all end up in the build request
*/
func addRequestFlags(cmd *cobra.Command, req *build.Request) {
	flags := cmd.Flags()
	flags.StringSliceVarP(&req.Archs, "arch", "a", nil, "CPU architecture of the host system and the build (can be repeated)")
	flags.StringSliceVarP(&req.Partitions, "partition", "P", nil, "Slurm partition for the build (can be repeated, overrides --arch)")
	flags.StringVarP(&req.ExtraFlags, "extra-flags", "e", "", "extra flags to pass to EasyBuild")
	flags.StringVarP(&req.ExtraModFooter, "extra-mod-footer", "f", "", "path to extra footer for the module file")
	flags.BoolVarP(&req.Gpu, "gpu", "g", false, "request a GPU in the GPU partitions")
	flags.BoolVarP(&req.Local, "local", "l", false, "do not submit as job, run locally")
	flags.BoolVarP(&req.CLang, "clang", "c", false, "set LANG=C in the build (instead of unicode)")
	flags.StringVarP(&req.CrossCompile, "cross-compile", "x", "", "CPU architecture of the build (different than the build system)")
	flags.BoolVarP(&req.PwdRobotAppend, "pwd-robot-append", "p", false, "append current working dir to robot path")
	flags.BoolVarP(&req.Tmp, "tmp", "m", false, "use /tmp as temporary disk instead of /dev/shm")
	flags.BoolVarP(&req.TmpScratch, "tmp-scratch", "M", false, "use $VSC_SCRATCH as temporary disk instead of /dev/shm")
	flags.BoolVarP(&req.Bwrap, "bwrap", "b", false, "reinstall in 2 steps via new namespace with bwrap (no robot)")
	flags.BoolVarP(&req.SkipLmodCache, "skip-lmod-cache", "s", false, "do not run Lmod cache after installation")
	flags.IntVar(&req.Nodes, "nodes", build.DEFAULT_NODES, "number of nodes for the build job")
	flags.IntVar(&req.Tasks, "tasks", build.DEFAULT_TASKS, "number of tasks for the build job")
	flags.StringVar(&req.Walltime, "walltime", build.DEFAULT_WALLTIME, "time limit of the build job")
}

// dry runs log at debug level, unless a higher level was asked for
func raiseVerbosity() {
	if klog.V(1).Enabled() {
		return
	}
	if setErr := flag.CommandLine.Set("v", "1"); setErr != nil {
		klog.Warningf("Could not raise log level: %s", setErr)
	}
}

func newSubmitCmd(app *App) *cobra.Command {
	var req build.Request

	cmd := &cobra.Command{
		Use:   "submit [flags] easyconfig...",
		Short: "Submit easyconfigs as build jobs to all the different architectures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Easyconfigs = args
			req.WorkDir = app.workDir
			return runSubmit(app, req)
		},
	}
	addRequestFlags(cmd, &req)
	flags := cmd.Flags()
	flags.StringVarP(&req.ExtraSubFlags, "extra-sub-flags", "q", "", "extra flags to pass to Slurm")
	flags.BoolVarP(&req.Keep, "keep", "k", false, "do not delete the job file at the end")
	flags.BoolVarP(&req.DryRun, "dry-run", "D", false, "do not fetch/install, set debug log level")
	flags.BoolVarP(&req.PreFetch, "pre-fetch", "n", false, "pre-fetch sources before submitting build jobs")
	return cmd
}

func runSubmit(app *App, req build.Request) error {
	if req.DryRun {
		raiseVerbosity()
		klog.Info("Doing a dry-run, no fetch/install/lmod-cache")
	}

	planner := app.Planner()
	configs, planErr := planner.Plan(req)
	if planErr != nil {
		return planErr
	}

	builder, builderErr := app.Builder(req.DryRun, req.Keep)
	if builderErr != nil {
		return builderErr
	}

	if req.PreFetch {
		if fetchErr := builder.Prefetch(app.ctx, planner.FetchArgs(req), req.DryRun, req.EasyconfigString()); fetchErr != nil {
			return fetchErr
		}
	}

	for _, cfg := range configs {
		if req.Local {
			_, _, runErr := builder.RunLocal(app.ctx, cfg, req.Keep)
			if runErr != nil {
				return runErr
			}
			continue
		}

		record, submitErr := builder.SubmitBuild(app.ctx, cfg, req.ExtraSubFlags)
		if submitErr != nil {
			return submitErr
		}
		if record.SlurmJobId != "" {
			cmdOut(app, "%s %s\n", record.SlurmJobId, cfg.JobName)
		}
	}
	return nil
}
