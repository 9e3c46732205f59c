package jobscript

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"
	"text/template"

	"github.com/vub-hpc/buildtools/common/models"
)

// Lmod cache jobs always get the same resources
const (
	CacheJobWalltime = "1:0:0"
	CacheJobMem      = "1g"
)

// text/template writes this for values it could not resolve
const noValueMarker = "<no value>"

var sections = map[string]*template.Template{}

func init() {
	for name, text := range map[string]string{
		"header":          headerSection,
		"dummyModules":    dummyModulesSection,
		"environment":     environmentSection,
		"crossCompile":    crossCompileSection,
		"eb":              ebSection,
		"sandboxWrapper":  sandboxWrapperSection,
		"build":           buildSection,
		"sandboxRelocate": sandboxRelocateSection,
		"cacheTrigger":    cacheTriggerSection,
		"cacheJob":        cacheJobScript,
	} {
		sections[name] = template.Must(template.New(name).Option("missingkey=error").Parse(text))
	}
}

// SitePaths are the site-wide locations that end up in generated scripts
type SitePaths struct {
	AppsRoot     string
	AppsRealRoot string
	LmodCacheCmd string
}

type Generator struct {
	topology *models.ClusterTopology
	paths    SitePaths
}

func NewGenerator(topology *models.ClusterTopology, paths SitePaths) *Generator {
	return &Generator{topology: topology, paths: paths}
}

func (g *Generator) checkPaths() error {
	if g.paths.AppsRoot == "" {
		return models.NewConfigurationError("missing required site path: apps root")
	}
	if g.paths.LmodCacheCmd == "" {
		return models.NewConfigurationError("missing required site path: lmod cache command")
	}
	return nil
}

/**
render the build job script for the given config.
the config is validated first, so a ConfigurationError from here means nothing should be run
*/
func (g *Generator) Render(cfg models.JobConfig) (*RenderedScript, error) {
	if validateErr := cfg.Validate(g.topology); validateErr != nil {
		return nil, validateErr
	}
	if pathErr := g.checkPaths(); pathErr != nil {
		return nil, pathErr
	}
	if cfg.UseSandbox && g.paths.AppsRealRoot == "" {
		return nil, models.NewConfigurationError("missing required site path: real apps root is needed for sandboxed builds")
	}

	order := []string{"header"}
	if cfg.LoadDummyModules {
		order = append(order, "dummyModules")
	}
	order = append(order, "environment")
	if cfg.IsCrossCompile() {
		order = append(order, "crossCompile")
	}
	order = append(order, "eb")
	if cfg.UseSandbox {
		order = append(order, "sandboxWrapper")
	}
	order = append(order, "build")
	if cfg.UseSandbox {
		order = append(order, "sandboxRelocate")
	}
	if cfg.RunCacheUpdate {
		order = append(order, "cacheTrigger")
	}

	data := g.templateData(cfg)
	lines := make([]string, 0, 128)
	for _, name := range order {
		text, renderErr := renderSection(name, data)
		if renderErr != nil {
			return nil, renderErr
		}
		lines = append(lines, strings.Split(text, "\n")...)
	}
	return &RenderedScript{lines: lines}, nil
}

func (g *Generator) templateData(cfg models.JobConfig) map[string]string {
	return map[string]string{
		"job_name":             cfg.JobName,
		"walltime":             cfg.Walltime,
		"nodes":                strconv.Itoa(cfg.Nodes),
		"tasks":                strconv.Itoa(cfg.Tasks),
		"gpus":                 strconv.Itoa(cfg.Gpus),
		"partition":            cfg.Partition,
		"langcode":             cfg.LangCode,
		"tmp":                  cfg.TmpDir,
		"eb_buildpath":         cfg.BuildPath,
		"target_arch":          cfg.TargetArch,
		"robot_paths":          cfg.RobotPaths,
		"easyconfig":           cfg.Easyconfig,
		"eb_args":              strings.TrimSpace(cfg.Easyconfig + " " + cfg.EbOptions),
		"subdir_modules_bwrap": cfg.SubdirModulesBwrap,
		"apps_root":            g.paths.AppsRoot,
		"apps_real_root":       g.paths.AppsRealRoot,
		"lmod_cache_cmd":       g.paths.LmodCacheCmd,
		"cache_walltime":       CacheJobWalltime,
		"cache_mem":            CacheJobMem,
		"cache_job_name":       CacheJobName(cfg.TargetArch),
	}
}

func renderSection(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if execErr := sections[name].Execute(&buf, data); execErr != nil {
		return "", &models.ConfigurationError{Reason: fmt.Sprintf("could not render %s section", name), Err: execErr}
	}
	text := buf.String()
	if strings.Contains(text, noValueMarker) {
		return "", models.NewConfigurationError("unresolved placeholder in %s section", name)
	}
	return text, nil
}

// CacheJobName is shared by all cache jobs of one architecture, which is what the singleton dependency keys on
func CacheJobName(arch string) string {
	return "lmod_cache_" + arch
}

/**
CacheJob describes a standalone Lmod cache update job.
DependsOn is an optional list of job ids that must complete successfully first
*/
type CacheJob struct {
	Arch      string
	Partition string
	DependsOn []string
}

func (g *Generator) RenderCacheJob(job CacheJob) (*RenderedScript, error) {
	if pathErr := g.checkPaths(); pathErr != nil {
		return nil, pathErr
	}
	if job.Partition == "" {
		return nil, models.NewConfigurationError("missing required field: partition")
	}
	if job.Arch == "" {
		return nil, models.NewConfigurationError("missing required field: architecture")
	}
	if g.topology != nil && !g.topology.HasArch(job.Arch) {
		return nil, models.NewConfigurationError("unsupported architecture '%s'", job.Arch)
	}

	dependsOn := ""
	if len(job.DependsOn) > 0 {
		dependsOn = ",afterok:" + strings.Join(job.DependsOn, ":")
	}

	text, renderErr := renderSection("cacheJob", map[string]string{
		"cache_walltime": CacheJobWalltime,
		"cache_mem":      CacheJobMem,
		"cache_job_name": CacheJobName(job.Arch),
		"depends_on":     dependsOn,
		"partition":      job.Partition,
		"lmod_cache_cmd": g.paths.LmodCacheCmd,
		"arch":           job.Arch,
		"apps_root":      g.paths.AppsRoot,
	})
	if renderErr != nil {
		return nil, renderErr
	}
	return &RenderedScript{lines: strings.Split(text, "\n")}, nil
}

/**
RenderedScript is the text of a job script, one entry per line. It can't be changed once rendered
*/
type RenderedScript struct {
	lines []string
}

func (s *RenderedScript) Lines() []string {
	rtn := make([]string, len(s.lines))
	copy(rtn, s.lines)
	return rtn
}

// String returns the complete script, terminated by a newline
func (s *RenderedScript) String() string {
	return strings.Join(s.lines, "\n") + "\n"
}

func (s *RenderedScript) WriteFile(fileName string) error {
	return ioutil.WriteFile(fileName, []byte(s.String()), 0700)
}
