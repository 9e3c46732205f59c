package build

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/vub-hpc/buildtools/common/helpers"
	"github.com/vub-hpc/buildtools/common/jobscript"
	"github.com/vub-hpc/buildtools/common/models"
	"github.com/vub-hpc/buildtools/common/runner"
	"github.com/vub-hpc/buildtools/common/slurm"
	"golang.org/x/text/encoding"
	"k8s.io/klog/v2"
)

var fetchSucceededMatcher = regexp.MustCompile(`Build succeeded.*`)

/**
Builder takes planned JobConfigs through to a queued job or a finished local build.
store is optional, if it is nil no build records are kept
*/
type Builder struct {
	generator *jobscript.Generator
	submitter *slurm.Submitter
	executor  runner.Executor
	topology  *models.ClusterTopology
	store     *models.BuildRecordStore
	decoder   *encoding.Decoder
	stdout    io.Writer
	stderr    io.Writer
}

func NewBuilder(generator *jobscript.Generator, submitter *slurm.Submitter, executor runner.Executor, topology *models.ClusterTopology, store *models.BuildRecordStore) *Builder {
	return &Builder{
		generator: generator,
		submitter: submitter,
		executor:  executor,
		topology:  topology,
		store:     store,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

// SetStderrDecoder makes local builds decode their stderr with the given charset decoder before parsing it
func (b *Builder) SetStderrDecoder(decoder *encoding.Decoder) {
	b.decoder = decoder
}

// SetOutputs changes where the output of local builds is copied to, os.Stdout and os.Stderr by default
func (b *Builder) SetOutputs(stdout io.Writer, stderr io.Writer) {
	b.stdout = stdout
	b.stderr = stderr
}

func (b *Builder) mode() models.BuildMode {
	if b.submitter.DryRun() {
		return models.MODE_DRY_RUN
	}
	return models.MODE_SUBMIT
}

func (b *Builder) storeRecord(record models.BuildRecord) {
	if b.store == nil {
		return
	}
	if storeErr := b.store.Store(record); storeErr != nil {
		klog.Warningf("Could not keep build record for %s: %s", record.JobName, storeErr)
	}
}

/**
render the build job for cfg and queue it. Any cache update is left to the job itself.
extraSubFlags are handed to sbatch unchanged
*/
func (b *Builder) SubmitBuild(ctx context.Context, cfg models.JobConfig, extraSubFlags string) (*models.BuildRecord, error) {
	script, renderErr := b.generator.Render(cfg)
	if renderErr != nil {
		return nil, renderErr
	}

	klog.Infof("Building %s on %s (%s) for %s", cfg.Easyconfig, cfg.Partition, cfg.Arch, cfg.TargetArch)
	record := models.NewBuildRecord(cfg, b.mode())
	result, subErr := b.submitter.SubmitScript(ctx, script, slurm.Submission{
		JobName:    cfg.JobName,
		Cluster:    cfg.Cluster,
		ExtraFlags: extraSubFlags,
	})
	if subErr != nil {
		klog.Errorf("Failed to submit build job for '%s': %s", cfg.Easyconfig, subErr)
		return nil, subErr
	}

	record.SlurmJobId = result.JobId
	b.storeRecord(record)
	return &record, nil
}

/**
run the build job for cfg on this machine and wait for it.
the script is rendered without its own cache update, instead the cache job is queued from here
once the build output shows that something was installed.
a non-zero exit from the build comes back as an *models.ExternalCommandError along with the BuildResult
*/
func (b *Builder) RunLocal(ctx context.Context, cfg models.JobConfig, keep bool) (*models.BuildResult, *models.BuildRecord, error) {
	var localCfg models.JobConfig
	if copyErr := copier.Copy(&localCfg, &cfg); copyErr != nil {
		return nil, nil, copyErr
	}
	localCfg.RunCacheUpdate = false

	script, renderErr := b.generator.Render(localCfg)
	if renderErr != nil {
		return nil, nil, renderErr
	}

	jobFile, writeErr := helpers.WriteTempFile("", cfg.JobName+"-", ".sh", script.String())
	if writeErr != nil {
		return nil, nil, writeErr
	}
	if keep || b.submitter.DryRun() {
		klog.Infof("Job script for %s is at %s", cfg.JobName, jobFile)
	} else {
		defer helpers.RemoveTempFile(jobFile)
	}

	command := slurm.LocalCommand(jobFile)
	record := models.NewBuildRecord(cfg, models.MODE_LOCAL)
	if b.submitter.DryRun() {
		klog.Infof("%s Local execution of job script: %s", slurm.DRY_RUN_PREFIX, command)
		record.Mode = models.MODE_DRY_RUN
		b.storeRecord(record)
		return nil, &record, nil
	}

	klog.Infof("Building %s locally (%s) for %s", cfg.Easyconfig, cfg.Arch, cfg.TargetArch)
	command.StdoutTee = b.stdout
	command.StderrTee = b.stderr
	output, runErr := b.executor.Run(ctx, command)
	if output == nil {
		klog.Errorf("Could not run build job for '%s': %s", cfg.Easyconfig, runErr)
		return nil, nil, runErr
	}

	result, parseErr := b.ParseOutput(output.Stderr, output.ExitCode)
	if parseErr != nil {
		klog.Warningf("Could not read all of the build output: %s", parseErr)
	}
	record.SetResult(result)

	if runErr != nil {
		klog.Errorf("Build of '%s' failed with exit code %d", cfg.Easyconfig, result.ExitCode)
		b.storeRecord(record)
		return &result, &record, runErr
	}
	if result.Succeeded() {
		klog.Infof("Successfully installed %s", strings.Join(result.ModuleNames(), " "))
	} else {
		klog.Info("Build finished but did not report any installed modules")
	}

	cacheJob, cacheErr := b.TriggerCacheUpdate(ctx, result, cfg)
	if cacheErr != nil {
		record.CacheJobError = cacheErr.Error()
	} else if cacheJob != nil {
		record.CacheJobId = cacheJob.JobId
	}
	b.storeRecord(record)
	return &result, &record, nil
}

/**
scan captured stderr for marker lines, decoding it first if a decoder is set
*/
func (b *Builder) ParseOutput(stderr []byte, exitCode int) (models.BuildResult, error) {
	var parser models.BuildOutputParser
	lines := make([]string, 0)
	scanErr := helpers.ScanDecodedLines(bytes.NewReader(stderr), b.decoder, func(line string) {
		lines = append(lines, line)
		parser.ParseLine(line)
	})
	return parser.Result(exitCode, strings.Join(lines, "\n")), scanErr
}

/**
queue an Lmod cache update for the target arch of cfg, if and only if the build reported success and
cfg asks for cache updates. Returns nil and no error if nothing needed doing.
a failure comes back as a *models.SubmissionError; it is logged here and must not fail the build
*/
func (b *Builder) TriggerCacheUpdate(ctx context.Context, result models.BuildResult, cfg models.JobConfig) (*slurm.SubmitResult, error) {
	if !result.Succeeded() || !cfg.RunCacheUpdate {
		return nil, nil
	}

	klog.Infof("Submitting Lmod cache update job on partition %s for architecture %s", cfg.Partition, cfg.TargetArch)
	cacheResult, cacheErr := b.submitCacheJob(ctx, jobscript.CacheJob{Arch: cfg.TargetArch, Partition: cfg.Partition}, cfg.Cluster)
	if cacheErr != nil {
		klog.Warningf("Could not submit Lmod cache update job: %s", cacheErr)
		var subErr *models.SubmissionError
		if !errors.As(cacheErr, &subErr) {
			cacheErr = &models.SubmissionError{JobName: jobscript.CacheJobName(cfg.TargetArch), Err: cacheErr}
		}
		return nil, cacheErr
	}
	return cacheResult, nil
}

func (b *Builder) submitCacheJob(ctx context.Context, job jobscript.CacheJob, cluster string) (*slurm.SubmitResult, error) {
	script, renderErr := b.generator.RenderCacheJob(job)
	if renderErr != nil {
		return nil, renderErr
	}
	if cluster == "" {
		cluster = b.topology.ClusterFor(job.Partition)
	}
	return b.submitter.SubmitScript(ctx, script, slurm.Submission{
		JobName: jobscript.CacheJobName(job.Arch),
		Cluster: cluster,
	})
}

/**
queue a cache update job on each of the given partitions, for the architecture of that partition.
unlike TriggerCacheUpdate this is the whole point of the operation, so the first failure is returned
*/
func (b *Builder) SubmitCacheJobs(ctx context.Context, partitions []string, dependsOn []string) ([]*slurm.SubmitResult, error) {
	results := make([]*slurm.SubmitResult, 0, len(partitions))
	for _, partition := range partitions {
		arch, partErr := b.topology.ArchForPartition(partition)
		if partErr != nil {
			return results, &models.ConfigurationError{Reason: "can't refresh Lmod cache", Err: partErr}
		}

		klog.Infof("Refreshing Lmod cache on partition %s for architecture %s", partition, arch)
		result, subErr := b.submitCacheJob(ctx, jobscript.CacheJob{Arch: arch, Partition: partition, DependsOn: dependsOn}, "")
		if subErr != nil {
			klog.Errorf("Failed to submit Lmod cache job: %s", subErr)
			return results, subErr
		}
		results = append(results, result)
	}
	return results, nil
}

/**
download the sources for the request and everything it depends on, so that build jobs don't all
fetch the same files. In a dry run EasyBuild only reports what it would do
*/
func (b *Builder) Prefetch(ctx context.Context, fetchArgs []string, dryRun bool, easyconfig string) error {
	klog.Infof("Fetching missing sources for %s and its dependencies...", easyconfig)
	output, runErr := b.executor.Run(ctx, runner.Command{Name: "eb", Args: fetchArgs})
	if runErr != nil {
		if output != nil {
			klog.Errorf("Failed to fetch sources for %s: %s%s", easyconfig, output.Stdout, output.Stderr)
		} else {
			klog.Errorf("Failed to fetch sources for %s: %s", easyconfig, runErr)
		}
		return runErr
	}

	combined := string(output.Stdout) + string(output.Stderr)
	if dryRun {
		klog.V(1).Info(combined)
		return nil
	}
	found := fetchSucceededMatcher.FindAllString(combined, -1)
	if len(found) > 0 {
		klog.Info(strings.Replace(strings.Join(found, "\n"), "Build succeeded", "Sources are ready", -1))
	}
	return nil
}
