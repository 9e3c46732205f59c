package runner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"

	"github.com/vub-hpc/buildtools/common/models"
	"k8s.io/klog/v2"
)

type Command struct {
	Name string
	Args []string
	Env  []string //added on top of the current environment
	Dir  string

	//optional, output is copied here as well as being captured
	StdoutTee io.Writer
	StderrTee io.Writer
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

/**
Executor runs an external command to completion.
If the command ran but exited non-zero, the Output is returned along with a *models.ExternalCommandError.
If the command could not be started at all the Output is nil
*/
type Executor interface {
	Run(ctx context.Context, cmd Command) (*Output, error)
}

// ExecExecutor runs commands as local subprocesses
type ExecExecutor struct{}

func (e ExecExecutor) Run(ctx context.Context, command Command) (*Output, error) {
	klog.V(1).Infof("exec command is %s", command)
	cmd := exec.CommandContext(ctx, command.Name, command.Args...)
	cmd.Dir = command.Dir
	if len(command.Env) > 0 {
		cmd.Env = append(cmd.Environ(), command.Env...)
	}

	var outContent, errContent bytes.Buffer
	cmd.Stdout = teeTo(&outContent, command.StdoutTee)
	cmd.Stderr = teeTo(&errContent, command.StderrTee)

	startErr := cmd.Start()
	if startErr != nil {
		klog.Errorf("Could not start command %s: %s", command.Name, startErr)
		return nil, startErr
	}

	completeErr := cmd.Wait()
	output := &Output{
		Stdout: outContent.Bytes(),
		Stderr: errContent.Bytes(),
	}
	if completeErr != nil {
		var exitErr *exec.ExitError
		if errors.As(completeErr, &exitErr) {
			output.ExitCode = exitErr.ExitCode()
			if output.ExitCode < 0 {
				//killed by a signal
				output.ExitCode = 1
			}
			klog.V(1).Infof("Subprocess %s exited with code %d", command.Name, output.ExitCode)
			return output, &models.ExternalCommandError{Command: command.String(), ExitCode: output.ExitCode, Err: completeErr}
		}
		klog.Errorf("Could not run subprocess %s: %s", command.Name, completeErr)
		return nil, completeErr
	}
	return output, nil
}

func teeTo(buffer *bytes.Buffer, tee io.Writer) io.Writer {
	if tee == nil {
		return buffer
	}
	return io.MultiWriter(buffer, tee)
}
