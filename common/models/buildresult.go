package models

import (
	"errors"
	"fmt"
	"strings"

	"k8s.io/klog/v2"
)

const (
	MARKER_PREFIX            = "BUILD_TOOLS:"
	MARKER_BUILDS_SUCCEEDED  = "BUILD_TOOLS: builds_succeeded"
	MARKER_REAL_MOD_FILEPATH = "BUILD_TOOLS: real_mod_filepath"
)

type ModuleVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (m ModuleVersion) String() string {
	return m.Name + "/" + m.Version
}

/**
split a full module name like "GCC/12.3.0" into its name and version.
the version is everything after the last slash
*/
func ParseModuleVersion(fullModName string) (ModuleVersion, error) {
	idx := strings.LastIndex(fullModName, "/")
	if idx <= 0 || idx == len(fullModName)-1 {
		return ModuleVersion{}, errors.New(fmt.Sprintf("'%s' is not a name/version pair", fullModName))
	}
	return ModuleVersion{
		Name:    fullModName[:idx],
		Version: fullModName[idx+1:],
	}, nil
}

/**
BuildResult is the outcome of one external build invocation.
SuccessMarker is only set if the build tool printed a builds_succeeded marker line on stderr,
an exit code of 0 on its own is not a success signal (nothing may have been built)
*/
type BuildResult struct {
	ExitCode        int             `json:"exitCode"`
	Stderr          string          `json:"-"`
	SuccessMarker   bool            `json:"successMarker"`
	Modules         []ModuleVersion `json:"modules"`
	RealModFilepath string          `json:"realModFilepath,omitempty"`
}

func (r BuildResult) Succeeded() bool {
	return r.ExitCode == 0 && r.SuccessMarker
}

func (r BuildResult) ModuleNames() []string {
	rtn := make([]string, len(r.Modules))
	for i, mod := range r.Modules {
		rtn[i] = mod.String()
	}
	return rtn
}

/**
BuildOutputParser accumulates marker lines from a build tool's stderr, one line at a time.
unrecognised lines are ignored, so feeding it the complete stderr stream is always safe
*/
type BuildOutputParser struct {
	successMarker   bool
	modules         []ModuleVersion
	realModFilepath string
}

func (p *BuildOutputParser) ParseLine(line string) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, MARKER_PREFIX) {
		return
	}

	switch {
	case strings.HasPrefix(line, MARKER_BUILDS_SUCCEEDED):
		p.successMarker = true
		for _, token := range strings.Fields(strings.TrimPrefix(line, MARKER_BUILDS_SUCCEEDED)) {
			mod, parseErr := ParseModuleVersion(token)
			if parseErr != nil {
				klog.Warningf("Ignoring malformed module in build output: %s", parseErr)
				continue
			}
			p.modules = append(p.modules, mod)
		}
	case strings.HasPrefix(line, MARKER_REAL_MOD_FILEPATH):
		fields := strings.Fields(strings.TrimPrefix(line, MARKER_REAL_MOD_FILEPATH))
		if len(fields) > 0 {
			p.realModFilepath = fields[0]
		}
	default:
		klog.V(2).Infof("Unhandled marker line: %s", line)
	}
}

func (p *BuildOutputParser) Result(exitCode int, stderr string) BuildResult {
	return BuildResult{
		ExitCode:        exitCode,
		Stderr:          stderr,
		SuccessMarker:   p.successMarker,
		Modules:         p.modules,
		RealModFilepath: p.realModFilepath,
	}
}

/**
convenience function to parse a complete stderr capture in one go
*/
func ParseBuildStderr(stderr string, exitCode int) BuildResult {
	var parser BuildOutputParser
	for _, line := range strings.Split(stderr, "\n") {
		parser.ParseLine(line)
	}
	return parser.Result(exitCode, stderr)
}
