package helpers

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"
)

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DBNum    int    `yaml:"dbNum"`
}

type ScratchStorage struct {
	LocalPath string `yaml:"localpath"`
}

type PathsConfig struct {
	AppsRoot      string `yaml:"appsroot"`
	AppsRealRoot  string `yaml:"appsrealroot"` //where AppsRoot is really mounted, the sandbox binds over this
	SoftStackRoot string `yaml:"softstackroot"`
	LmodCacheCmd  string `yaml:"lmodcachecmd"`
}

type EasyBuildConfig struct {
	RobotRepos         []string `yaml:"robotrepos"`
	EasyblockRepo      string   `yaml:"easyblockrepo"`
	SourcePath         string   `yaml:"sourcepath"`
	AcceptEulaFor      string   `yaml:"accepteulafor"`
	Hooks              string   `yaml:"hooks"`
	SubdirModulesBwrap string   `yaml:"subdirmodulesbwrap"`
}

type Config struct {
	Redis          RedisConfig     `yaml:"redis"`
	Scratch        ScratchStorage  `yaml:"scratch"`
	Paths          PathsConfig     `yaml:"paths"`
	EasyBuild      EasyBuildConfig `yaml:"easybuild"`
	TopologyFile   string          `yaml:"topologyfile"`
	StderrEncoding string          `yaml:"stderrencoding"`
	MaxRecords     int             `yaml:"maxrecords"`
}

/**
the configuration that is used when no config file is available
*/
func DefaultConfig() *Config {
	return &Config{
		Scratch: ScratchStorage{LocalPath: "/dev/shm"},
		Paths: PathsConfig{
			AppsRoot:      "/apps/brussel",
			AppsRealRoot:  "/vscmnt/brussel_pixiu_apps/_apps_brussel",
			SoftStackRoot: "~/vsc-software-stack",
			LmodCacheCmd:  "/usr/libexec/lmod/run_lmod_cache.py",
		},
		EasyBuild: EasyBuildConfig{
			RobotRepos:         []string{"site-vub/easyconfigs", "vsc", "easybuild"},
			EasyblockRepo:      "site-vub/easyblocks/*/*.py",
			SourcePath:         "/apps/brussel/sources:/apps/gent/source",
			AcceptEulaFor:      "Intel-oneAPI,CUDA",
			SubdirModulesBwrap: ".modules_bwrap",
		},
		MaxRecords: 500,
	}
}

func ReadConfig(configFile string) (*Config, error) {
	configBytes, readErr := ioutil.ReadFile(configFile)
	if readErr != nil {
		klog.Errorf("Could not read config from '%s': %s", configFile, readErr)
		return nil, readErr
	}

	conf := DefaultConfig()
	err := yaml.Unmarshal(configBytes, conf)
	if err != nil {
		klog.Errorf("Could not understand config from '%s': %s", configFile, err)
		return nil, err
	}
	return conf, nil
}

/**
expand a leading ~ to the user's home directory. the path is returned unchanged if there is no home
*/
func ExpandUser(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, homeErr := os.UserHomeDir()
	if homeErr != nil {
		klog.Warningf("Could not expand %s: %s", path, homeErr)
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// RobotPaths returns the easyconfig repositories as a colon-separated search path
func (c *Config) RobotPaths() string {
	root := ExpandUser(c.Paths.SoftStackRoot)
	paths := make([]string, len(c.EasyBuild.RobotRepos))
	for i, repo := range c.EasyBuild.RobotRepos {
		paths[i] = filepath.Join(root, repo)
	}
	return strings.Join(paths, ":")
}

func (c *Config) EasyblockPath() string {
	if c.EasyBuild.EasyblockRepo == "" {
		return ""
	}
	return filepath.Join(ExpandUser(c.Paths.SoftStackRoot), c.EasyBuild.EasyblockRepo)
}

// RedisEnabled is false when no redis address is configured; build records are not kept then
func (c *Config) RedisEnabled() bool {
	return c.Redis.Address != ""
}

/**
the cluster topology file, with a relative path taken relative to the config file it was read from.
empty if no topology file is configured
*/
func (c *Config) TopologyPath(configFile string) string {
	if c.TopologyFile == "" {
		return ""
	}
	topologyFile := ExpandUser(c.TopologyFile)
	if filepath.IsAbs(topologyFile) || configFile == "" {
		return topologyFile
	}
	return filepath.Join(filepath.Dir(configFile), topologyFile)
}
