package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/vub-hpc/buildtools/common/models"
)

func requireShell(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}
}

func TestExecExecutorSuccess(t *testing.T) {
	requireShell(t)
	var tee bytes.Buffer

	output, err := ExecExecutor{}.Run(context.Background(), Command{
		Name:      "sh",
		Args:      []string{"-c", "echo out; echo err >&2; echo $BUILDTOOLS_TEST_VAR"},
		Env:       []string{"BUILDTOOLS_TEST_VAR=hello"},
		StderrTee: &tee,
	})
	if err != nil {
		t.Fatal("Run unexpectedly failed: ", err)
	}
	if output.ExitCode != 0 {
		t.Errorf("Got exit code %d, expected 0", output.ExitCode)
	}
	if string(output.Stdout) != "out\nhello\n" {
		t.Errorf("Got unexpected stdout '%s'", string(output.Stdout))
	}
	if string(output.Stderr) != "err\n" {
		t.Errorf("Got unexpected stderr '%s'", string(output.Stderr))
	}
	if tee.String() != "err\n" {
		t.Errorf("stderr was not copied to the tee, got '%s'", tee.String())
	}
}

func TestExecExecutorExitCode(t *testing.T) {
	requireShell(t)

	output, err := ExecExecutor{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo failing >&2; exit 3"},
	})
	var cmdErr *models.ExternalCommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Expected an ExternalCommandError, got %v", err)
	}
	if cmdErr.ExitCode != 3 || output.ExitCode != 3 {
		t.Errorf("Got exit code %d/%d, expected 3", cmdErr.ExitCode, output.ExitCode)
	}
	if !strings.Contains(string(output.Stderr), "failing") {
		t.Errorf("stderr was not captured on failure: '%s'", string(output.Stderr))
	}
}

func TestExecExecutorNotFound(t *testing.T) {
	output, err := ExecExecutor{}.Run(context.Background(), Command{Name: "/nonexistent/buildtools-binary"})
	if err == nil {
		t.Error("Expected an error for a missing binary")
	}
	if output != nil {
		t.Error("Expected no output for a command that did not start")
	}
}

func TestCommandString(t *testing.T) {
	cmd := Command{Name: "sbatch", Args: []string{"--parsable", "job.sh"}}
	if cmd.String() != "sbatch --parsable job.sh" {
		t.Errorf("Got unexpected string %s", cmd.String())
	}
}
