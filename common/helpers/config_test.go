package helpers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadConfig(t *testing.T) {
	conf, readErr := ReadConfig("../../config/buildtools.yaml")
	if readErr != nil {
		t.Fatal("ReadConfig unexpectedly failed: ", readErr)
	}

	if conf.Paths.AppsRoot != "/apps/brussel" {
		t.Errorf("Got unexpected apps root '%s'", conf.Paths.AppsRoot)
	}
	if len(conf.EasyBuild.RobotRepos) != 3 {
		t.Errorf("Got %d robot repos, expected 3", len(conf.EasyBuild.RobotRepos))
	}
	if conf.TopologyFile != "clusters.yaml" {
		t.Errorf("Got unexpected topology file '%s'", conf.TopologyFile)
	}
	if conf.RedisEnabled() {
		t.Error("Redis should not be enabled without an address")
	}

	_, shouldErr := ReadConfig("fdsfsdjhsdfk")
	if shouldErr == nil {
		t.Error("ReadConfig should fail on an invalid filename")
	}
}

func TestConfigRobotPaths(t *testing.T) {
	conf := DefaultConfig()
	conf.Paths.SoftStackRoot = "/opt/stack"

	result := conf.RobotPaths()
	if result != "/opt/stack/site-vub/easyconfigs:/opt/stack/vsc:/opt/stack/easybuild" {
		t.Errorf("Got unexpected robot paths %s", result)
	}
	if conf.EasyblockPath() != "/opt/stack/site-vub/easyblocks/*/*.py" {
		t.Errorf("Got unexpected easyblock path %s", conf.EasyblockPath())
	}
}

func TestExpandUser(t *testing.T) {
	home, homeErr := os.UserHomeDir()
	if homeErr != nil {
		t.Skip("no home directory available")
	}

	if ExpandUser("~/stack") != filepath.Join(home, "stack") {
		t.Errorf("Got unexpected expansion %s", ExpandUser("~/stack"))
	}
	if ExpandUser("/abs/~/path") != "/abs/~/path" {
		t.Error("Paths without leading ~ should not be changed")
	}
	if !strings.HasPrefix(ExpandUser("~"), home) {
		t.Errorf("Got unexpected expansion %s", ExpandUser("~"))
	}
}

func TestConfigTopologyPath(t *testing.T) {
	conf := DefaultConfig()
	if conf.TopologyPath("/etc/buildtools/buildtools.yaml") != "" {
		t.Error("No topology file configured should give an empty path")
	}

	conf.TopologyFile = "clusters.yaml"
	if result := conf.TopologyPath("/etc/buildtools/buildtools.yaml"); result != "/etc/buildtools/clusters.yaml" {
		t.Errorf("Got unexpected topology path %s", result)
	}

	conf.TopologyFile = "/opt/clusters.yaml"
	if result := conf.TopologyPath("/etc/buildtools/buildtools.yaml"); result != "/opt/clusters.yaml" {
		t.Errorf("Got unexpected topology path %s", result)
	}
}
