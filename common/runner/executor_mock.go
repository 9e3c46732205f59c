package runner

import (
	"context"
	"io"

	"github.com/vub-hpc/buildtools/common/models"
)

/**
MockExecutor records every command it is asked to run and answers with Handler.
If Handler is nil every command succeeds with empty output
*/
type MockExecutor struct {
	Calls   []Command
	Handler func(cmd Command) (stdout string, stderr string, exitCode int)
}

func (m *MockExecutor) Run(ctx context.Context, cmd Command) (*Output, error) {
	m.Calls = append(m.Calls, cmd)
	if m.Handler == nil {
		return &Output{}, nil
	}

	stdout, stderr, exitCode := m.Handler(cmd)
	if cmd.StdoutTee != nil {
		io.WriteString(cmd.StdoutTee, stdout)
	}
	if cmd.StderrTee != nil {
		io.WriteString(cmd.StderrTee, stderr)
	}
	output := &Output{Stdout: []byte(stdout), Stderr: []byte(stderr), ExitCode: exitCode}
	if exitCode != 0 {
		return output, &models.ExternalCommandError{Command: cmd.String(), ExitCode: exitCode}
	}
	return output, nil
}
