package main

import (
	"errors"
	"flag"

	"github.com/spf13/cobra"
	"github.com/vub-hpc/buildtools/common/models"
)

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "buildtools",
		Short: "Build software with EasyBuild on the VUB clusters",
		Long: `buildtools renders Slurm job scripts that install software with EasyBuild,
submits them to every architecture that needs the software and refreshes the
Lmod cache once an installation has finished.

Examples:
  buildtools submit zlib-1.2.13-GCCcore-12.3.0.eb
  buildtools submit --arch zen4 --gpu CUDA-12.1.1.eb
  buildtools render --local -o job.sh zlib-1.2.13-GCCcore-12.3.0.eb
  buildtools lmod-cache`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.Load()
		},
	}
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	rootCmd.PersistentFlags().StringVar(&app.configFile, "config", "", "site config file (default is $BUILD_TOOLS_CONFIG, or built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&app.topologyFile, "topology", "", "cluster topology file (overrides the one in the site config)")
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.AddCommand(
		newRenderCmd(app),
		newSubmitCmd(app),
		newLmodCacheCmd(app),
		newArchsCmd(app),
		newHistoryCmd(app),
		newReapCmd(app),
	)
	return rootCmd
}

/**
the process exit code for an error returned by a command. Failed external commands keep their own exit code
*/
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var cmdErr *models.ExternalCommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
		//a failed submission is our failure, not sbatch's
		var subErr *models.SubmissionError
		if errors.As(err, &subErr) {
			return 1
		}
		return cmdErr.ExitCode
	}
	return 1
}
