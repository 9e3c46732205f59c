package jobscript

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vub-hpc/buildtools/common/models"
)

var testPaths = SitePaths{
	AppsRoot:     "/apps/brussel",
	AppsRealRoot: "/vscmnt/brussel_pixiu_apps/_apps_brussel",
	LmodCacheCmd: "/usr/libexec/lmod/run_lmod_cache.py",
}

func testJobConfig() models.JobConfig {
	return models.JobConfig{
		JobName:            "zlib-1.2.11-skylake-ib",
		Easyconfig:         "zlib-1.2.11.eb",
		Partition:          "skylake_mpi",
		Cluster:            "hydra",
		Nodes:              1,
		Tasks:              4,
		Walltime:           "23:59:59",
		Arch:               "skylake-ib",
		TargetArch:         "skylake-ib",
		LangCode:           "en_US.utf8",
		TmpDir:             "/dev/shm",
		BuildPath:          "/dev/shm/eb-submit-build",
		InstallPath:        "/apps/brussel/${VSC_OS_LOCAL}/skylake-ib",
		RobotPaths:         "/home/vsc/easyconfigs:/home/vsc/vsc",
		EbOptions:          "--robot --parallel=4",
		SubdirModulesBwrap: ".modules_bwrap",
		RunCacheUpdate:     true,
		LoadDummyModules:   true,
	}
}

func newTestGenerator() *Generator {
	return NewGenerator(models.DefaultClusterTopology(), testPaths)
}

func TestRenderHeader(t *testing.T) {
	script, err := newTestGenerator().Render(testJobConfig())
	require.NoError(t, err)

	lines := script.Lines()
	assert.Equal(t, "#!/bin/bash -l", lines[0])
	assert.Contains(t, lines, "#SBATCH --job-name=zlib-1.2.11-skylake-ib")
	assert.Contains(t, lines, "#SBATCH --time=23:59:59")
	assert.Contains(t, lines, "#SBATCH --nodes=1")
	assert.Contains(t, lines, "#SBATCH --ntasks=4")
	assert.Contains(t, lines, "#SBATCH --gpus-per-node=0")
	assert.Contains(t, lines, "#SBATCH --partition=skylake_mpi")
	assert.Contains(t, lines, "export LANG=en_US.utf8")
	assert.Contains(t, lines, "export BUILD_TOOLS_LOAD_DUMMY_MODULES=1")
	assert.Contains(t, lines, "$EB zlib-1.2.11.eb --robot --parallel=4 2>\"$eb_stderr\"")
	assert.NotContains(t, script.String(), noValueMarker)
}

func TestRenderIsDeterministic(t *testing.T) {
	gen := newTestGenerator()
	first, err := gen.Render(testJobConfig())
	require.NoError(t, err)
	second, err := gen.Render(testJobConfig())
	require.NoError(t, err)
	assert.Equal(t, first.String(), second.String())
}

func TestRenderOptionalSections(t *testing.T) {
	cfg := testJobConfig()
	cfg.LoadDummyModules = false
	cfg.RunCacheUpdate = false

	script, err := newTestGenerator().Render(cfg)
	require.NoError(t, err)
	text := script.String()
	assert.NotContains(t, text, "bwrap")
	assert.NotContains(t, text, "BUILD_TOOLS_LOAD_DUMMY_MODULES")
	assert.NotContains(t, text, "sbatch")
	assert.NotContains(t, text, "update MODULEPATH for cross-compilations")
	assert.True(t, strings.HasSuffix(text, "fi\n"), "script should end after the build section")
}

func TestRenderCrossCompile(t *testing.T) {
	cfg := testJobConfig()
	cfg.TargetArch = "skylake"

	script, err := newTestGenerator().Render(cfg)
	require.NoError(t, err)
	text := script.String()
	assert.Contains(t, text, `if [ "skylake" != "$local_arch" ]; then`)
	assert.Contains(t, text, "export MODULEPATH=${MODULEPATH//$local_arch/skylake}")
	assert.Contains(t, text, "--job-name=lmod_cache_skylake")
}

func TestRenderSandbox(t *testing.T) {
	cfg := testJobConfig()
	cfg.UseSandbox = true

	script, err := newTestGenerator().Render(cfg)
	require.NoError(t, err)
	text := script.String()

	assert.Contains(t, text, `appsmnt="/vscmnt/brussel_pixiu_apps/_apps_brussel"`)
	assert.Contains(t, text, `modbwrap="/apps/brussel/$VSC_OS_LOCAL/skylake-ib/.modules_bwrap/all/$modname"`)
	assert.Contains(t, text, "EASYBUILD_ROBOT_PATHS=/home/vsc/easyconfigs:/home/vsc/vsc")
	//name and version split at the last slash, the same as the builds_succeeded marker
	assert.Contains(t, text, "modname=${value%/*}; modversion=${value##*/};")

	//the wrapper must be set up before the build runs and the relocation must come after it
	wrapperAt := strings.Index(text, `EB="${bwrap_cmd[*]} $EB"`)
	buildAt := strings.Index(text, `$EB zlib-1.2.11.eb`)
	relocateAt := strings.Index(text, "installation moved from bwrap to real location")
	cacheAt := strings.Index(text, "submitting Lmod cache update job")
	require.True(t, wrapperAt > 0 && buildAt > 0 && relocateAt > 0 && cacheAt > 0)
	assert.True(t, wrapperAt < buildAt)
	assert.True(t, buildAt < relocateAt)
	assert.True(t, relocateAt < cacheAt)
}

func TestRenderSandboxNeedsRealRoot(t *testing.T) {
	cfg := testJobConfig()
	cfg.UseSandbox = true

	gen := NewGenerator(models.DefaultClusterTopology(), SitePaths{AppsRoot: "/apps/brussel", LmodCacheCmd: "run_lmod_cache.py"})
	_, err := gen.Render(cfg)
	var confErr *models.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
}

func TestRenderCacheTrigger(t *testing.T) {
	script, err := newTestGenerator().Render(testJobConfig())
	require.NoError(t, err)
	lines := script.Lines()

	assert.Contains(t, lines, "        --time=1:0:0")
	assert.Contains(t, lines, "        --mem=1g")
	assert.Contains(t, lines, "        --job-name=lmod_cache_skylake-ib")
	assert.Contains(t, lines, "        --dependency=singleton")
	assert.Contains(t, lines, "        --partition=skylake_mpi")
	assert.Contains(t, lines, "        /usr/libexec/lmod/run_lmod_cache.py")
	assert.Contains(t, lines, "        --module-basedir /apps/brussel/$VSC_OS_LOCAL")
	assert.NotContains(t, script.String(), "--wait")
}

func TestRenderMissingField(t *testing.T) {
	cfg := testJobConfig()
	cfg.Walltime = ""

	script, err := newTestGenerator().Render(cfg)
	assert.Nil(t, script)
	var confErr *models.ConfigurationError
	require.True(t, errors.As(err, &confErr), "expected a ConfigurationError, got %v", err)
	assert.Contains(t, err.Error(), "walltime")
}

func TestRenderGpuMismatch(t *testing.T) {
	cfg := testJobConfig()
	cfg.Gpus = 2

	_, err := newTestGenerator().Render(cfg)
	var confErr *models.ConfigurationError
	assert.True(t, errors.As(err, &confErr), "gpus on a cpu partition should not render, got %v", err)

	cfg.Arch = "zen2-ib"
	cfg.TargetArch = "zen2-ib"
	cfg.Partition = "ampere_gpu"
	script, okErr := newTestGenerator().Render(cfg)
	require.NoError(t, okErr)
	assert.Contains(t, script.Lines(), "#SBATCH --gpus-per-node=2")
}

func TestRenderMissingSitePath(t *testing.T) {
	gen := NewGenerator(models.DefaultClusterTopology(), SitePaths{AppsRoot: "/apps/brussel"})
	_, err := gen.Render(testJobConfig())
	var confErr *models.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
}

func TestRenderCacheJob(t *testing.T) {
	script, err := newTestGenerator().RenderCacheJob(CacheJob{Arch: "zen3", Partition: "zen3"})
	require.NoError(t, err)

	expected := `#!/bin/bash
#SBATCH --time=1:0:0
#SBATCH --mem=1g
#SBATCH --output=%x_%j.log
#SBATCH --job-name=lmod_cache_zen3
#SBATCH --dependency=singleton
#SBATCH --partition=zen3
/usr/libexec/lmod/run_lmod_cache.py --create-cache --architecture zen3 --module-basedir /apps/brussel/$VSC_OS_LOCAL
`
	assert.Equal(t, expected, script.String())
}

func TestRenderCacheJobDependencies(t *testing.T) {
	script, err := newTestGenerator().RenderCacheJob(CacheJob{Arch: "skylake", Partition: "skylake", DependsOn: []string{"1234", "1235"}})
	require.NoError(t, err)
	assert.Contains(t, script.Lines(), "#SBATCH --dependency=singleton,afterok:1234:1235")
}

func TestRenderCacheJobUnknownArch(t *testing.T) {
	_, err := newTestGenerator().RenderCacheJob(CacheJob{Arch: "pentium4", Partition: "skylake"})
	var confErr *models.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
}

func TestRenderedScriptWriteFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "jobscript")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	script, renderErr := newTestGenerator().Render(testJobConfig())
	require.NoError(t, renderErr)

	fileName := filepath.Join(dir, "build.sh")
	require.NoError(t, script.WriteFile(fileName))
	content, readErr := ioutil.ReadFile(fileName)
	require.NoError(t, readErr)
	assert.Equal(t, script.String(), string(content))
}

func TestRenderSectionMissingKey(t *testing.T) {
	_, err := renderSection("header", map[string]string{"job_name": "zlib-1.2.11-skylake"})
	require.Error(t, err)

	var confErr *models.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
	assert.Contains(t, err.Error(), "walltime")
}

func TestRenderSectionNoValue(t *testing.T) {
	//a nil value is not a missing key, text/template prints it as <no value>
	_, err := renderSection("header", map[string]interface{}{
		"job_name":  "zlib-1.2.11-skylake",
		"walltime":  nil,
		"nodes":     "1",
		"tasks":     "4",
		"gpus":      "0",
		"partition": "skylake",
	})
	require.Error(t, err)

	var confErr *models.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
	assert.Contains(t, err.Error(), "unresolved placeholder")
}
