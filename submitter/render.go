package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vub-hpc/buildtools/common/build"
	"github.com/vub-hpc/buildtools/common/models"
	"k8s.io/klog/v2"
)

func cmdOut(app *App, format string, args ...interface{}) {
	fmt.Fprintf(app.stdout, format, args...)
}

func newRenderCmd(app *App) *cobra.Command {
	var req build.Request
	var output string
	var toolchain string

	cmd := &cobra.Command{
		Use:   "render [flags] easyconfig...",
		Short: "Write the build job scripts without submitting them",
		Long: `Write the build job script for every build host to a file, a directory or stdout.
With a directory, every script is written to <job name>.sh inside it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Easyconfigs = args
			req.WorkDir = app.workDir
			return runRender(app, req, output, toolchain)
		},
	}
	addRequestFlags(cmd, &req)
	cmd.Flags().StringVarP(&output, "output", "o", "", "file or directory to write to (default is stdout)")
	cmd.Flags().StringVarP(&toolchain, "toolchain", "t", "", "toolchain generation of the easyconfigs, detected from the file name if not given")
	return cmd
}

func runRender(app *App, req build.Request, output string, toolchain string) error {
	tcgen, tcErr := models.ToolchainGeneration(req.EasyconfigString(), toolchain)
	if tcErr != nil {
		return tcErr
	}
	if tcgen != "" {
		klog.Infof("Toolchain generation: %s", tcgen)
	}

	configs, planErr := app.Planner().Plan(req)
	if planErr != nil {
		return planErr
	}

	gen := app.Generator()
	outputIsDir := false
	if output != "" {
		if info, statErr := os.Stat(output); statErr == nil && info.IsDir() {
			outputIsDir = true
		}
	}
	if output != "" && !outputIsDir && len(configs) > 1 {
		return models.NewConfigurationError("%d job scripts can't be written to the single file %s, give a directory", len(configs), output)
	}

	for _, cfg := range configs {
		//a local run queues the cache job itself
		if req.Local {
			cfg.RunCacheUpdate = false
		}
		script, renderErr := gen.Render(cfg)
		if renderErr != nil {
			return renderErr
		}

		switch {
		case output == "":
			cmdOut(app, "%s", script.String())
		case outputIsDir:
			fileName := filepath.Join(output, cfg.JobName+".sh")
			if writeErr := script.WriteFile(fileName); writeErr != nil {
				return writeErr
			}
			klog.Infof("Job script for %s written to %s", cfg.JobName, fileName)
		default:
			if writeErr := script.WriteFile(output); writeErr != nil {
				return writeErr
			}
			klog.Infof("Job script for %s written to %s", cfg.JobName, output)
		}
	}
	return nil
}
