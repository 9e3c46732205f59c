package models

import (
	"errors"
	"fmt"
	"regexp"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

/**
JobConfig is the complete description of one build job: where it runs, what it asks of the scheduler
and what EasyBuild should do once it gets there. One is created per build host for each build request
and it is not modified afterwards; derive a new one with copier if a variant is needed.
*/
type JobConfig struct {
	JobName    string `json:"jobName"`
	Easyconfig string `json:"easyconfig"`

	//scheduler resources
	Partition string `json:"partition"`
	Cluster   string `json:"cluster"`
	Nodes     int    `json:"nodes"`
	Tasks     int    `json:"tasks"`
	Gpus      int    `json:"gpus"`
	Walltime  string `json:"walltime"`

	//Arch is the architecture of the build host, TargetArch the one that the software is built for
	Arch       string `json:"arch"`
	TargetArch string `json:"targetArch"`

	LangCode           string `json:"langCode"`
	TmpDir             string `json:"tmpDir"`
	BuildPath          string `json:"buildPath"`
	InstallPath        string `json:"installPath"`
	RobotPaths         string `json:"robotPaths"`
	EbOptions          string `json:"ebOptions"`
	SubdirModulesBwrap string `json:"subdirModulesBwrap"`

	UseSandbox       bool `json:"useSandbox"`
	RunCacheUpdate   bool `json:"runCacheUpdate"`
	LoadDummyModules bool `json:"loadDummyModules"`
}

// accepts the Slurm time formats we actually use: [D-]HH:MM:SS and H:M:S
var walltimeMatcher = regexp.MustCompile(`^(\d+-)?\d{1,2}:\d{1,2}:\d{1,2}$`)

// characters that would break out of an #SBATCH directive or a shell word
var unsafeValueMatcher = regexp.MustCompile(`[\s"'` + "`" + `;&|<>]`)

// easyconfigs are a space separated list of file names or paths, word splitting is all the shell may do with them
var unsafeEasyconfigMatcher = regexp.MustCompile(`[\n"'` + "`" + `;&|<>$(){}\\*?]`)

/**
check that the JobConfig is complete and consistent with the given topology.
all problems are reported together as a single ConfigurationError
*/
func (c JobConfig) Validate(topology *ClusterTopology) error {
	errs := make([]error, 0)

	required := []struct {
		name  string
		value string
	}{
		{"job name", c.JobName},
		{"easyconfig", c.Easyconfig},
		{"partition", c.Partition},
		{"walltime", c.Walltime},
		{"architecture", c.Arch},
		{"target architecture", c.TargetArch},
		{"language code", c.LangCode},
		{"tmp dir", c.TmpDir},
		{"build path", c.BuildPath},
		{"robot paths", c.RobotPaths},
	}
	for _, field := range required {
		if field.value == "" {
			errs = append(errs, fmt.Errorf("missing required field: %s", field.name))
		}
	}

	if c.UseSandbox && c.SubdirModulesBwrap == "" {
		errs = append(errs, errors.New("missing required field: sandbox modules subdir"))
	}

	if c.Nodes < 1 {
		errs = append(errs, fmt.Errorf("node count must be at least 1, got %d", c.Nodes))
	}
	if c.Tasks < 1 {
		errs = append(errs, fmt.Errorf("task count must be at least 1, got %d", c.Tasks))
	}
	if c.Gpus < 0 {
		errs = append(errs, fmt.Errorf("gpu count can't be negative, got %d", c.Gpus))
	}

	if c.Walltime != "" && !walltimeMatcher.MatchString(c.Walltime) {
		errs = append(errs, fmt.Errorf("walltime '%s' is not in [D-]HH:MM:SS format", c.Walltime))
	}

	for _, field := range []struct {
		name  string
		value string
	}{{"job name", c.JobName}, {"partition", c.Partition}, {"cluster", c.Cluster}, {"walltime", c.Walltime}} {
		if unsafeValueMatcher.MatchString(field.value) {
			errs = append(errs, fmt.Errorf("%s '%s' contains characters that are not allowed in a job directive", field.name, field.value))
		}
	}

	if unsafeEasyconfigMatcher.MatchString(c.Easyconfig) {
		errs = append(errs, fmt.Errorf("easyconfig '%s' contains shell characters that are not allowed in a file name", c.Easyconfig))
	}

	if topology != nil {
		errs = append(errs, c.validateTopology(topology)...)
	}

	if agg := utilerrors.NewAggregate(errs); agg != nil {
		return &ConfigurationError{Reason: "invalid job configuration", Err: agg}
	}
	return nil
}

func (c JobConfig) validateTopology(topology *ClusterTopology) []error {
	errs := make([]error, 0)

	if c.Arch != "" && !topology.HasArch(c.Arch) {
		errs = append(errs, fmt.Errorf("unsupported architecture '%s'", c.Arch))
	}
	if c.TargetArch != "" && !topology.HasArch(c.TargetArch) {
		errs = append(errs, fmt.Errorf("unsupported target architecture '%s'", c.TargetArch))
	}

	if c.Partition != "" {
		partDef, exists := topology.Partition(c.Partition)
		if !exists {
			errs = append(errs, fmt.Errorf("unknown partition '%s'", c.Partition))
		} else if c.Arch != "" && partDef.Arch != c.Arch {
			errs = append(errs, fmt.Errorf("partition '%s' has architecture %s, not %s", c.Partition, partDef.Arch, c.Arch))
		}
	}

	if c.Gpus > 0 && !topology.IsGpuPartition(c.Partition) {
		errs = append(errs, fmt.Errorf("%d gpus requested on partition '%s' which has no gpus", c.Gpus, c.Partition))
	}
	return errs
}

// IsCrossCompile is true when the software is built for a different arch than the build host
func (c JobConfig) IsCrossCompile() bool {
	return c.TargetArch != "" && c.TargetArch != c.Arch
}
