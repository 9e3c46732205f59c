package models

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"k8s.io/klog/v2"
)

/**
return the name for a build job as {easyconfig name}-{host arch}-{target arch}.
the target arch is left off if it is empty or the same as the host arch
*/
func MkJobName(easyconfig string, hostArch string, targetArch string) string {
	jobName := strings.TrimSuffix(path.Base(easyconfig), ".eb")

	if hostArch != "" {
		jobName += "-" + hostArch
	}
	if targetArch != "" && targetArch != hostArch {
		jobName += "-" + targetArch
	}
	return jobName
}

const toolchainFormat = `20[1-2][0-9][ab]`

var toolchainMatcher = regexp.MustCompile(toolchainFormat)
var userToolchainMatcher = regexp.MustCompile("^" + toolchainFormat + "$")

// sub-toolchains that don't carry the generation in their name
var subToolchains = map[string][]string{
	"2024a": {"GCCcore-13.3.0", "GCC-13.3.0", "intel-compilers-2024.2.0"},
}

/**
determine the toolchain generation (e.g. 2023a) of an easyconfig from its file name.
if userToolchain is set it is validated and returned instead.
returns an empty string if no generation could be determined
*/
func ToolchainGeneration(easyconfig string, userToolchain string) (string, error) {
	if userToolchain != "" {
		if !userToolchainMatcher.MatchString(userToolchain) {
			return "", NewConfigurationError("specified toolchain generation is not valid: %s", userToolchain)
		}
		return userToolchain, nil
	}

	found := make(map[string]bool)
	for _, match := range toolchainMatcher.FindAllString(easyconfig, -1) {
		found[match] = true
	}
	if len(found) == 1 {
		for tcgen := range found {
			klog.V(1).Infof("Toolchain generation: %s", tcgen)
			return tcgen, nil
		}
	}

	generations := make([]string, 0, len(subToolchains))
	for tcgen := range subToolchains {
		generations = append(generations, tcgen)
	}
	sort.Strings(generations)

	for _, tcgen := range generations {
		for _, subtc := range subToolchains[tcgen] {
			if strings.Contains(easyconfig, subtc) {
				klog.V(1).Infof("Toolchain generation: %s", tcgen)
				return tcgen, nil
			}
		}
	}
	klog.V(1).Infof("Could not determine toolchain generation of %s", easyconfig)
	return "", nil
}
