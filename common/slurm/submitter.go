package slurm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/vub-hpc/buildtools/common/helpers"
	"github.com/vub-hpc/buildtools/common/jobscript"
	"github.com/vub-hpc/buildtools/common/models"
	"github.com/vub-hpc/buildtools/common/runner"
	"k8s.io/klog/v2"
)

const DRY_RUN_PREFIX = "(DRY RUN)"

// sbatch --parsable prints "<jobid>" or "<jobid>;<cluster>"
var parsableMatcher = regexp.MustCompile(`^(\d+)(;(\S+))?$`)

/**
Submission describes one job script to hand to sbatch.
Cluster is the Slurm cluster module to load, DEFAULT_CLUSTER if empty.
ExtraFlags is passed through to sbatch as-is
*/
type Submission struct {
	JobName    string
	JobFile    string
	Cluster    string
	ExtraFlags string
}

type SubmitResult struct {
	JobId   string
	Cluster string
	Command string
	DryRun  bool
}

type Submitter struct {
	executor runner.Executor
	dryRun   bool
	tmpDir   string
	keep     bool
}

/**
create a Submitter. In dry-run mode no command is ever run, only logged.
Job files for SubmitScript are written to tmpDir (the system temp dir if empty) and removed
after submission unless keep is set
*/
func NewSubmitter(executor runner.Executor, dryRun bool, tmpDir string, keep bool) *Submitter {
	return &Submitter{executor: executor, dryRun: dryRun, tmpDir: tmpDir, keep: keep}
}

func (s *Submitter) DryRun() bool {
	return s.dryRun
}

// SubmitCommandLine is the shell command that switches to the right cluster and queues the job file
func SubmitCommandLine(sub Submission) string {
	cluster := sub.Cluster
	if cluster == "" {
		cluster = models.DEFAULT_CLUSTER
	}
	parts := []string{"sbatch", "--parsable"}
	if extra := strings.TrimSpace(sub.ExtraFlags); extra != "" {
		parts = append(parts, extra)
	}
	parts = append(parts, sub.JobFile)
	return fmt.Sprintf("module --force purge && module load cluster/%s && %s", cluster, strings.Join(parts, " "))
}

/**
parse the output of `sbatch --parsable`. Anything Slurm prints before the job id line
(warnings from the module system, for example) is ignored
*/
func ParseJobId(output string) (jobId string, cluster string, err error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	matches := parsableMatcher.FindStringSubmatch(last)
	if matches == nil {
		return "", "", fmt.Errorf("could not find a job id in sbatch output '%s'", last)
	}
	return matches[1], matches[3], nil
}

func (s *Submitter) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	commandLine := SubmitCommandLine(sub)
	result := &SubmitResult{Cluster: sub.Cluster, Command: commandLine, DryRun: s.dryRun}
	if result.Cluster == "" {
		result.Cluster = models.DEFAULT_CLUSTER
	}

	if s.dryRun {
		klog.Infof("%s Job submission command: %s", DRY_RUN_PREFIX, commandLine)
		return result, nil
	}

	klog.V(1).Infof("Submitting job %s: %s", sub.JobName, commandLine)
	output, runErr := s.executor.Run(ctx, runner.Command{Name: "bash", Args: []string{"-c", commandLine}})
	if runErr != nil {
		subErr := &models.SubmissionError{JobName: sub.JobName, Err: runErr}
		if output != nil {
			subErr.Output = strings.TrimSpace(string(output.Stdout) + "\n" + string(output.Stderr))
		}
		return nil, subErr
	}

	jobId, cluster, parseErr := ParseJobId(string(output.Stdout))
	if parseErr != nil {
		return nil, &models.SubmissionError{JobName: sub.JobName, Output: string(output.Stdout), Err: parseErr}
	}
	result.JobId = jobId
	if cluster != "" {
		result.Cluster = cluster
	}
	klog.Infof("Submitted job %s with id %s on cluster %s", sub.JobName, result.JobId, result.Cluster)
	return result, nil
}

/**
write the script to a job file and submit it. The job file is removed afterwards unless the
Submitter keeps job files, or this is a dry run (so that it can be inspected)
*/
func (s *Submitter) SubmitScript(ctx context.Context, script *jobscript.RenderedScript, sub Submission) (*SubmitResult, error) {
	jobFile, writeErr := helpers.WriteTempFile(s.tmpDir, sub.JobName+"-", ".sh", script.String())
	if writeErr != nil {
		return nil, &models.SubmissionError{JobName: sub.JobName, Err: writeErr}
	}
	if s.keep || s.dryRun {
		klog.Infof("Job script for %s is at %s", sub.JobName, jobFile)
	} else {
		defer helpers.RemoveTempFile(jobFile)
	}

	sub.JobFile = jobFile
	return s.Submit(ctx, sub)
}

// LocalCommand runs a job script in the current shell session instead of queueing it
func LocalCommand(jobFile string) runner.Command {
	return runner.Command{Name: "bash", Args: []string{jobFile}}
}
