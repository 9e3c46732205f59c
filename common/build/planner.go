package build

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/davecgh/go-spew/spew"
	mapset "github.com/deckarep/golang-set"
	"github.com/jinzhu/copier"
	"github.com/vub-hpc/buildtools/common/helpers"
	"github.com/vub-hpc/buildtools/common/models"
	"k8s.io/klog/v2"
)

const (
	DEFAULT_WALLTIME = "23:59:59"
	DEFAULT_NODES    = 1
	DEFAULT_TASKS    = 4
	DEFAULT_LANGCODE = "en_US.utf8"
)

// EasyBuild options that every build gets
var commonEbOptions = []string{"--logtostdout", "--debug", "--module-extensions", "--zip-logs=bzip2", "--module-depends-on"}

/**
Request holds everything the user asked for on the command line
*/
type Request struct {
	Easyconfigs    []string
	Archs          []string
	Partitions     []string
	ExtraFlags     string //passed on to EasyBuild
	ExtraSubFlags  string //passed on to sbatch
	ExtraModFooter string
	Gpu            bool
	Local          bool
	Keep           bool
	CLang          bool
	CrossCompile   string
	PwdRobotAppend bool
	WorkDir        string //appended to the robot paths with PwdRobotAppend
	Tmp            bool
	TmpScratch     bool
	DryRun         bool
	PreFetch       bool
	Bwrap          bool
	SkipLmodCache  bool
	Nodes          int
	Tasks          int
	Walltime       string
}

func (r Request) EasyconfigString() string {
	return strings.Join(r.Easyconfigs, " ")
}

// BuildHost is a partition to build on, along with its architecture
type BuildHost struct {
	Arch      string
	Partition string
}

func (h BuildHost) String() string {
	return fmt.Sprintf("%s (%s)", h.Partition, h.Arch)
}

type Planner struct {
	topology *models.ClusterTopology
	config   *helpers.Config
	env      *helpers.Environment
}

func NewPlanner(topology *models.ClusterTopology, config *helpers.Config, env *helpers.Environment) *Planner {
	return &Planner{topology: topology, config: config, env: env}
}

/**
work out which architectures to build for: the local one, the ones asked for, or all the defaults
*/
func (p *Planner) ArchStack(req Request) ([]string, error) {
	if req.Local {
		localArch := p.env.LocalArch()
		if !p.topology.HasArch(localArch) {
			return nil, models.NewConfigurationError("local system has unsupported architecture: '%s'", localArch)
		}
		klog.Infof("Building on local architecture: %s", localArch)
		return []string{localArch}, nil
	}

	if len(req.Archs) > 0 {
		unknown := make([]string, 0)
		for _, arch := range req.Archs {
			if !p.topology.HasArch(arch) {
				unknown = append(unknown, arch)
			}
		}
		if len(unknown) > 0 {
			return nil, models.NewConfigurationError("unknown archs: %s", strings.Join(unknown, ", "))
		}
		return req.Archs, nil
	}
	return p.topology.DefaultArchs(), nil
}

/**
work out the (arch, partition) pairs to build on. A list of partitions overrides the list of archs.
The result has no duplicates and is sorted by partition and then arch
*/
func (p *Planner) BuildHosts(req Request) ([]BuildHost, error) {
	archStack, archErr := p.ArchStack(req)
	if archErr != nil {
		return nil, archErr
	}
	klog.V(1).Infof("List of architectures: %s", strings.Join(archStack, ", "))

	hostSet := mapset.NewSet()
	if len(req.Partitions) > 0 {
		if len(req.Archs) > 0 {
			klog.Warning("Overwriting given architectures with the architectures of given partitions")
		}
		for _, part := range req.Partitions {
			arch, partErr := p.topology.ArchForPartition(part)
			if partErr != nil {
				klog.Warningf("Ignoring %s", partErr)
				continue
			}
			hostSet.Add(BuildHost{Arch: arch, Partition: part})
		}
	} else {
		for _, arch := range archStack {
			def, _ := p.topology.Arch(arch)
			if def.Partition.Cpu == "" {
				continue
			}
			hostSet.Add(BuildHost{Arch: arch, Partition: def.Partition.Cpu})
		}
	}

	if hostSet.Cardinality() == 0 {
		return nil, models.NewConfigurationError("no valid build hosts")
	}

	hosts := make([]BuildHost, 0, hostSet.Cardinality())
	for item := range hostSet.Iter() {
		hosts = append(hosts, item.(BuildHost))
	}
	sort.Slice(hosts, func(i, j int) bool {
		if hosts[i].Partition != hosts[j].Partition {
			return hosts[i].Partition < hosts[j].Partition
		}
		return hosts[i].Arch < hosts[j].Arch
	})

	hostNames := make([]string, len(hosts))
	for i, host := range hosts {
		hostNames[i] = host.String()
	}
	klog.V(1).Infof("Target build hosts: %s", strings.Join(hostNames, ", "))
	return hosts, nil
}

func (p *Planner) robotPaths(req Request) string {
	robotPaths := p.config.RobotPaths()
	if req.PwdRobotAppend && req.WorkDir != "" {
		robotPaths += ":" + req.WorkDir
	}
	return robotPaths
}

func (p *Planner) tmpDir(req Request, targetArch string) string {
	switch {
	case req.Tmp:
		return "/tmp"
	case req.TmpScratch:
		//expanded by the job shell, the scratch location can differ between build hosts
		return filepath.Join("$VSC_SCRATCH", targetArch)
	case p.env.TmpDirOverride != "":
		return p.env.TmpDirOverride
	case p.config.Scratch.LocalPath != "":
		return p.config.Scratch.LocalPath
	default:
		return "/dev/shm"
	}
}

func (p *Planner) installPath(targetArch string) string {
	return filepath.Join(p.config.Paths.AppsRoot, p.env.OsLocal, targetArch)
}

/**
EasyBuild configuration options as --name=value, in a fixed order.
empty settings are left out, and so is the hooks file if withHooks is false
*/
func (p *Planner) ebConfigOptions(robotPaths string, installPath string, buildPath string, withHooks bool) []string {
	settings := []struct {
		name  string
		value string
	}{
		{"accept-eula-for", p.config.EasyBuild.AcceptEulaFor},
		{"robot-paths", robotPaths},
		{"include-easyblocks", p.config.EasyblockPath()},
		{"sourcepath", p.config.EasyBuild.SourcePath},
		{"installpath", installPath},
		{"buildpath", buildPath},
	}
	if withHooks {
		settings = append(settings, struct {
			name  string
			value string
		}{"hooks", p.config.EasyBuild.Hooks})
	}

	rtn := make([]string, 0, len(settings))
	for _, setting := range settings {
		if setting.value == "" {
			continue
		}
		rtn = append(rtn, fmt.Sprintf("--%s=%s", setting.name, setting.value))
	}
	return rtn
}

/**
turn the request into one JobConfig per build host. Every JobConfig is validated before it is returned,
so nothing needs to be run if this fails
*/
func (p *Planner) Plan(req Request) ([]models.JobConfig, error) {
	if len(req.Easyconfigs) == 0 {
		return nil, models.NewConfigurationError("no easyconfig is given")
	}
	klog.Infof("Preparing to install %s", req.EasyconfigString())

	hosts, hostsErr := p.BuildHosts(req)
	if hostsErr != nil {
		return nil, hostsErr
	}

	if req.CrossCompile != "" {
		if len(hosts) > 1 {
			return nil, models.NewConfigurationError("cross-compilation only supports 1 build architecture, got %d", len(hosts))
		}
		if !p.topology.HasArch(req.CrossCompile) {
			return nil, models.NewConfigurationError("unknown target arch: %s", req.CrossCompile)
		}
		klog.Infof("Doing cross-compilation to target arch: %s", req.CrossCompile)
	}

	if req.ExtraModFooter != "" {
		if footerErr := helpers.CheckFooterFile(req.ExtraModFooter); footerErr != nil {
			return nil, &models.ConfigurationError{Reason: "invalid extra module footer", Err: footerErr}
		}
	}

	base := models.JobConfig{
		Easyconfig:         req.EasyconfigString(),
		Nodes:              req.Nodes,
		Tasks:              req.Tasks,
		Walltime:           req.Walltime,
		LangCode:           DEFAULT_LANGCODE,
		RobotPaths:         p.robotPaths(req),
		SubdirModulesBwrap: p.config.EasyBuild.SubdirModulesBwrap,
		UseSandbox:         req.Bwrap,
		RunCacheUpdate:     p.env.LmodCache && !req.SkipLmodCache,
		LoadDummyModules:   p.env.LoadDummyModules,
	}
	if base.Nodes == 0 {
		base.Nodes = DEFAULT_NODES
	}
	if base.Tasks == 0 {
		base.Tasks = DEFAULT_TASKS
	}
	if base.Walltime == "" {
		base.Walltime = DEFAULT_WALLTIME
	}
	if req.CLang {
		base.LangCode = "C"
	}
	if !base.RunCacheUpdate {
		klog.Info("Not running Lmod cache after installation")
	}

	configs := make([]models.JobConfig, 0, len(hosts))
	for _, host := range hosts {
		var cfg models.JobConfig
		if copyErr := copier.Copy(&cfg, &base); copyErr != nil {
			return nil, copyErr
		}

		cfg.Arch = host.Arch
		cfg.TargetArch = host.Arch
		if req.CrossCompile != "" {
			cfg.TargetArch = req.CrossCompile
		}
		cfg.Partition = host.Partition

		if req.Gpu {
			archDef, _ := p.topology.Arch(host.Arch)
			if archDef.Partition.Gpu != "" {
				cfg.Partition = archDef.Partition.Gpu
				cfg.Gpus = 1
			}
		}
		cfg.Cluster = p.topology.ClusterFor(cfg.Partition)

		cfg.TmpDir = p.tmpDir(req, cfg.TargetArch)
		cfg.BuildPath = filepath.Join(cfg.TmpDir, "eb-submit-build")
		cfg.InstallPath = p.installPath(cfg.TargetArch)
		cfg.JobName = models.MkJobName(req.Easyconfigs[0], cfg.Arch, cfg.TargetArch)
		cfg.EbOptions = p.ebOptions(req, cfg)

		if validateErr := cfg.Validate(p.topology); validateErr != nil {
			return nil, validateErr
		}
		klog.V(2).Infof("Job config for %s: %s", host, spew.Sdump(cfg))
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (p *Planner) ebOptions(req Request, cfg models.JobConfig) string {
	ebOptions := append([]string{}, commonEbOptions...)
	if cfg.UseSandbox {
		ebOptions = append(ebOptions, "--rebuild", "--subdir-modules="+cfg.SubdirModulesBwrap)
	} else {
		//robot is not supported in the sandbox
		ebOptions = append(ebOptions, "--robot")
	}

	if cfg.IsCrossCompile() {
		targetDef, _ := p.topology.Arch(cfg.TargetArch)
		//optarch values can contain semicolons
		ebOptions = append(ebOptions, fmt.Sprintf("--optarch='%s'", targetDef.Opt))
	}

	if extra := strings.TrimSpace(req.ExtraFlags); extra != "" {
		ebOptions = append(ebOptions, extra)
	}
	ebOptions = append(ebOptions, p.ebConfigOptions(cfg.RobotPaths, cfg.InstallPath, cfg.BuildPath, true)...)

	if req.ExtraModFooter != "" {
		ebOptions = append(ebOptions, "--modules-footer="+req.ExtraModFooter)
	}
	return strings.Join(ebOptions, " ")
}

/**
the EasyBuild arguments to download all missing sources for the request, without building anything.
the build and install paths are those of the local machine
*/
func (p *Planner) FetchArgs(req Request) []string {
	localArch := p.env.LocalArch()
	tmpDir := p.tmpDir(Request{Tmp: req.Tmp}, localArch)

	args := []string{"--stop=fetch", "--robot", "--ignore-locks"}
	args = append(args, strings.Fields(req.ExtraFlags)...)
	args = append(args, p.ebConfigOptions(p.robotPaths(req), p.installPath(localArch), filepath.Join(tmpDir, "eb-submit-build-fetch"), false)...)
	if req.DryRun {
		//extended dry run
		args = append(args, "-x")
	}
	return append(args, req.Easyconfigs...)
}
