package helpers

import (
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
)

/**
Environment holds everything that we take from environment variables. It is read once at startup
and handed down explicitly, nothing else in the code base should call os.Getenv.
*/
type Environment struct {
	ArchLocal        string `mapstructure:"VSC_ARCH_LOCAL"`
	ArchSuffix       string `mapstructure:"VSC_ARCH_SUFFIX"`
	OsLocal          string `mapstructure:"VSC_OS_LOCAL"`
	Scratch          string `mapstructure:"VSC_SCRATCH"`
	TmpDirOverride   string `mapstructure:"BUILD_TOOLS_TMPDIR"`
	LoadDummyModules bool   `mapstructure:"BUILD_TOOLS_LOAD_DUMMY_MODULES"`
	LmodCache        bool   `mapstructure:"BUILD_TOOLS_LMOD_CACHE"`
	ConfigFile       string `mapstructure:"BUILD_TOOLS_CONFIG"`
}

/**
decode an environment in os.Environ() format. unset and empty variables keep their defaults
*/
func EnvironmentFromList(environ []string) (*Environment, error) {
	env := &Environment{
		LoadDummyModules: true,
		LmodCache:        true,
	}

	values := make(map[string]interface{}, len(environ))
	for _, entry := range environ {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[1] == "" {
			continue
		}
		values[parts[0]] = parts[1]
	}

	decoder, setupErr := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           env,
	})
	if setupErr != nil {
		return nil, setupErr
	}
	if decodeErr := decoder.Decode(values); decodeErr != nil {
		return nil, decodeErr
	}
	return env, nil
}

func CurrentEnvironment() (*Environment, error) {
	return EnvironmentFromList(os.Environ())
}

// LocalArch is the full architecture name of this host, including the fabric suffix
func (e Environment) LocalArch() string {
	return e.ArchLocal + e.ArchSuffix
}
