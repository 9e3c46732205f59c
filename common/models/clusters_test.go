package models

import (
	"errors"
	"io/ioutil"
	"os"
	"path"
	"testing"
)

func TestLoadClusterTopology(t *testing.T) {
	//LoadClusterTopology should parse a YAML file and unmarshal it
	topology, loadErr := LoadClusterTopology("../../config/clusters.yaml")
	if loadErr != nil {
		t.Error("Load unexpectedly failed: ", loadErr)
		t.FailNow()
	}

	if len(topology.Archs) != 5 {
		t.Errorf("Got %d archs, expected 5", len(topology.Archs))
	}
	if topology.Archs["zen2-ib"].Partition.Gpu != "ampere_gpu" {
		t.Errorf("Got unexpected gpu partition for zen2-ib: '%s'", topology.Archs["zen2-ib"].Partition.Gpu)
	}
	if len(topology.Archs["broadwell"].CudaCC) != 2 {
		t.Errorf("Got %d cuda compute capabilities for broadwell, expected 2", len(topology.Archs["broadwell"].CudaCC))
	}
	if topology.ClusterFor("zen3") != "manticore" {
		t.Errorf("Got cluster %s for zen3, expected manticore", topology.ClusterFor("zen3"))
	}

	//LoadClusterTopology should return an error if it can't load the yaml
	_, shouldLoadErr := LoadClusterTopology("fdsfsdjhsdfk")
	if shouldLoadErr == nil {
		t.Error("Load should fail on an invalid filename")
	}
}

func TestLoadClusterTopologyInconsistent(t *testing.T) {
	tempDir, _ := ioutil.TempDir("", "buildtools-test")
	defer os.RemoveAll(tempDir)

	filePath := path.Join(tempDir, "clusters.yaml")
	content := `archs:
  skylake:
    default: true
    partition:
      cpu: skylake_nonexistent
partitions:
  skylake:
    arch: skylake
`
	ioutil.WriteFile(filePath, []byte(content), 0644)

	_, loadErr := LoadClusterTopology(filePath)
	if loadErr == nil {
		t.Error("Load should fail when an arch refers to an unknown partition")
	}
	var confErr *ConfigurationError
	if !errors.As(loadErr, &confErr) {
		t.Errorf("Expected a ConfigurationError, got %T", loadErr)
	}
}

func TestDefaultClusterTopology(t *testing.T) {
	topology := DefaultClusterTopology()
	if checkErr := topology.Check(); checkErr != nil {
		t.Error("Default topology is not consistent: ", checkErr)
	}

	defaults := topology.DefaultArchs()
	expected := []string{"broadwell", "skylake", "skylake-ib", "zen2-ib", "zen4", "zen5-ib"}
	if len(defaults) != len(expected) {
		t.Fatalf("Got %d default archs, expected %d: %v", len(defaults), len(expected), defaults)
	}
	for i, name := range expected {
		if defaults[i] != name {
			t.Errorf("Default arch %d was %s, expected %s", i, defaults[i], name)
		}
	}

	gpuArchs := topology.GpuArchs()
	if len(gpuArchs) != 2 || gpuArchs[0] != "broadwell" || gpuArchs[1] != "zen2-ib" {
		t.Errorf("Got unexpected gpu archs %v", gpuArchs)
	}
}

func TestClusterTopologyPartitions(t *testing.T) {
	topology := DefaultClusterTopology()

	if !topology.IsGpuPartition("ampere_gpu") {
		t.Error("ampere_gpu should be a gpu partition")
	}
	if topology.IsGpuPartition("skylake_mpi") {
		t.Error("skylake_mpi should not be a gpu partition")
	}
	if topology.IsGpuPartition("") {
		t.Error("empty partition should never be a gpu partition")
	}

	if topology.ClusterFor("haswell_mpi") != "chimera" {
		t.Errorf("Got cluster %s for haswell_mpi", topology.ClusterFor("haswell_mpi"))
	}
	if topology.ClusterFor("unknown") != DEFAULT_CLUSTER {
		t.Errorf("Unknown partition should be on the default cluster, got %s", topology.ClusterFor("unknown"))
	}

	arch, archErr := topology.ArchForPartition("pascal_gpu")
	if archErr != nil || arch != "broadwell" {
		t.Errorf("Got arch '%s' (%v) for pascal_gpu, expected broadwell", arch, archErr)
	}
	_, shouldErr := topology.ArchForPartition("nonexistent")
	if shouldErr == nil {
		t.Error("ArchForPartition should fail for an unknown partition")
	}
}
