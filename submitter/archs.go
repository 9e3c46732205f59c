package main

import (
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newArchsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "archs",
		Short: "List the architectures and partitions that software can be built for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(app.stdout, 0, 4, 2, ' ', 0)
			w.Write([]byte("ARCH\tDEFAULT\tCPU PARTITION\tGPU PARTITION\tCLUSTER\tCUDA CC\tOPTARCH\n"))
			for _, name := range app.topology.ArchNames() {
				def, _ := app.topology.Arch(name)
				isDefault := "no"
				if def.Default {
					isDefault = "yes"
				}
				gpu := def.Partition.Gpu
				if gpu == "" {
					gpu = "-"
				}
				cudaCC := strings.Join(def.CudaCC, ",")
				if cudaCC == "" {
					cudaCC = "-"
				}
				line := strings.Join([]string{
					name,
					isDefault,
					def.Partition.Cpu,
					gpu,
					app.topology.ClusterFor(def.Partition.Cpu),
					cudaCC,
					def.Opt,
				}, "\t")
				w.Write([]byte(line + "\n"))
			}
			return w.Flush()
		},
	}
}
