package models

import (
	"errors"
	"fmt"
	"io/ioutil"
	"sort"

	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"
)

const DEFAULT_CLUSTER = "hydra"

type ArchPartitions struct {
	Cpu string `yaml:"cpu"`
	Gpu string `yaml:"gpu"`
}

/**
ArchDefinition describes a CPU architecture (including the network fabric suffix, e.g. "skylake-ib")
that software gets installed for.
- Default: software is installed for this architecture when no explicit arch is requested
- Opt: optimisation flags handed to EasyBuild's --optarch when cross-compiling to this arch
- Partition: default CPU and GPU partitions for this arch. Gpu is empty if the arch has no GPUs
- CudaCC: supported CUDA compute capabilities in the GPU partition
*/
type ArchDefinition struct {
	Default   bool           `yaml:"default"`
	Opt       string         `yaml:"opt"`
	Partition ArchPartitions `yaml:"partition"`
	CudaCC    []string       `yaml:"cuda_cc"`
}

// PartitionDefinition is keyed by the partition name as it is known to Slurm.
type PartitionDefinition struct {
	Cluster string `yaml:"cluster"`
	Arch    string `yaml:"arch"`
}

type ClusterTopology struct {
	Archs      map[string]ArchDefinition      `yaml:"archs"`
	Partitions map[string]PartitionDefinition `yaml:"partitions"`
}

/**
load a ClusterTopology from the given YAML file and check that it is self-consistent
*/
func LoadClusterTopology(fromFilePath string) (*ClusterTopology, error) {
	content, readErr := ioutil.ReadFile(fromFilePath)
	if readErr != nil {
		klog.Errorf("Could not read cluster topology from %s: %s", fromFilePath, readErr)
		return nil, readErr
	}

	var topology ClusterTopology
	marshalErr := yaml.UnmarshalStrict(content, &topology)
	if marshalErr != nil {
		klog.Errorf("Could not understand cluster topology from %s: %s", fromFilePath, marshalErr)
		return nil, &ConfigurationError{Reason: "invalid cluster topology " + fromFilePath, Err: marshalErr}
	}

	if checkErr := topology.Check(); checkErr != nil {
		return nil, checkErr
	}
	return &topology, nil
}

/**
make sure that every partition referenced by an arch exists, and that every partition points to a known arch
*/
func (t *ClusterTopology) Check() error {
	if len(t.Archs) == 0 {
		return NewConfigurationError("cluster topology has no architectures")
	}
	for _, archName := range t.ArchNames() {
		arch := t.Archs[archName]
		if arch.Partition.Cpu == "" {
			return NewConfigurationError("architecture %s has no cpu partition", archName)
		}
		for _, part := range []string{arch.Partition.Cpu, arch.Partition.Gpu} {
			if part == "" {
				continue
			}
			if _, exists := t.Partitions[part]; !exists {
				return NewConfigurationError("architecture %s refers to unknown partition %s", archName, part)
			}
		}
	}
	for _, partName := range t.PartitionNames() {
		if _, exists := t.Archs[t.Partitions[partName].Arch]; !exists {
			return NewConfigurationError("partition %s refers to unknown architecture '%s'", partName, t.Partitions[partName].Arch)
		}
	}
	return nil
}

func (t *ClusterTopology) Arch(name string) (ArchDefinition, bool) {
	def, exists := t.Archs[name]
	return def, exists
}

func (t *ClusterTopology) Partition(name string) (PartitionDefinition, bool) {
	def, exists := t.Partitions[name]
	return def, exists
}

func (t *ClusterTopology) HasArch(name string) bool {
	_, exists := t.Archs[name]
	return exists
}

// ArchNames returns all architecture names in sorted order
func (t *ClusterTopology) ArchNames() []string {
	rtn := make([]string, 0, len(t.Archs))
	for name := range t.Archs {
		rtn = append(rtn, name)
	}
	sort.Strings(rtn)
	return rtn
}

func (t *ClusterTopology) PartitionNames() []string {
	rtn := make([]string, 0, len(t.Partitions))
	for name := range t.Partitions {
		rtn = append(rtn, name)
	}
	sort.Strings(rtn)
	return rtn
}

// DefaultArchs returns the sorted names of the architectures that are installed by default
func (t *ClusterTopology) DefaultArchs() []string {
	rtn := make([]string, 0)
	for _, name := range t.ArchNames() {
		if t.Archs[name].Default {
			rtn = append(rtn, name)
		}
	}
	return rtn
}

/**
returns the Slurm cluster that the given partition belongs to.
partitions without an explicit cluster live on DEFAULT_CLUSTER
*/
func (t *ClusterTopology) ClusterFor(partition string) string {
	def, exists := t.Partitions[partition]
	if !exists || def.Cluster == "" {
		return DEFAULT_CLUSTER
	}
	return def.Cluster
}

/**
returns true if the given partition is the GPU partition of any architecture
*/
func (t *ClusterTopology) IsGpuPartition(partition string) bool {
	if partition == "" {
		return false
	}
	for _, arch := range t.Archs {
		if arch.Partition.Gpu == partition {
			return true
		}
	}
	return false
}

func (t *ClusterTopology) GpuArchs() []string {
	rtn := make([]string, 0)
	for _, name := range t.ArchNames() {
		if t.Archs[name].Partition.Gpu != "" {
			rtn = append(rtn, name)
		}
	}
	return rtn
}

/**
returns the architecture that the given partition belongs to, or an error if the partition is unknown
*/
func (t *ClusterTopology) ArchForPartition(partition string) (string, error) {
	def, exists := t.Partitions[partition]
	if !exists {
		return "", errors.New(fmt.Sprintf("unknown partition %s", partition))
	}
	return def.Arch, nil
}

/**
the cluster layout of the VUB Hydra, Chimera and Manticore clusters. Used when no topology file is configured
*/
func DefaultClusterTopology() *ClusterTopology {
	return &ClusterTopology{
		Archs: map[string]ArchDefinition{
			"broadwell": {
				Default:   true,
				Opt:       "mavx2",
				Partition: ArchPartitions{Cpu: "pascal_gpu", Gpu: "pascal_gpu"},
				CudaCC:    []string{"6.0", "6.1"},
			},
			"haswell-ib": {
				Default:   false,
				Opt:       "mavx2",
				Partition: ArchPartitions{Cpu: "haswell_mpi"},
			},
			"skylake": {
				Default:   true,
				Opt:       "mavx512",
				Partition: ArchPartitions{Cpu: "skylake"},
			},
			"skylake-ib": {
				Default:   true,
				Opt:       "mavx512",
				Partition: ArchPartitions{Cpu: "skylake_mpi"},
			},
			"zen2-ib": {
				Default: true,
				Opt:     "Intel:march=core-avx2;GCC:mavx2",
				//no non-gpu partition available
				Partition: ArchPartitions{Cpu: "ampere_gpu", Gpu: "ampere_gpu"},
				CudaCC:    []string{"8.0"},
			},
			"zen3": {
				Default:   false,
				Opt:       "Intel:march=core-avx2;GCC:mavx2",
				Partition: ArchPartitions{Cpu: "zen3"},
			},
			"zen3-ib": {
				Default:   false,
				Opt:       "Intel:march=core-avx2;GCC:mavx2",
				Partition: ArchPartitions{Cpu: "zen3_mpi"},
			},
			"zen4": {
				Default:   true,
				Opt:       "Intel:march=rocketlake;GCC:znver4",
				Partition: ArchPartitions{Cpu: "zen4"},
			},
			"zen5-ib": {
				Default:   true,
				Opt:       "Intel:-march=rocketlake;GCC:-march=znver5",
				Partition: ArchPartitions{Cpu: "zen5_mpi"},
			},
		},
		Partitions: map[string]PartitionDefinition{
			"ampere_gpu":  {Cluster: "hydra", Arch: "zen2-ib"},
			"haswell_mpi": {Cluster: "chimera", Arch: "haswell-ib"},
			"pascal_gpu":  {Cluster: "hydra", Arch: "broadwell"},
			"skylake":     {Cluster: "hydra", Arch: "skylake"},
			"skylake_mpi": {Cluster: "hydra", Arch: "skylake-ib"},
			"zen3":        {Cluster: "manticore", Arch: "zen3"},
			"zen3_mpi":    {Cluster: "manticore", Arch: "zen3-ib"},
			"zen4":        {Cluster: "hydra", Arch: "zen4"},
			"zen5_mpi":    {Cluster: "hydra", Arch: "zen5-ib"},
		},
	}
}
