package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vub-hpc/buildtools/common/runner"
	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	workDir, _ := os.Getwd()
	app := &App{
		ctx:      ctx,
		executor: runner.ExecExecutor{},
		environ:  os.Environ(),
		workDir:  workDir,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	defer app.Close()

	err := newRootCmd(app).Execute()
	stop()
	if err != nil {
		klog.Errorf("%s", err)
		klog.Flush()
		app.Close()
		os.Exit(ExitCodeFor(err))
	}
}
