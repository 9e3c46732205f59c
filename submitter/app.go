package main

import (
	"context"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-redis/redis/v7"
	"github.com/vub-hpc/buildtools/common/build"
	"github.com/vub-hpc/buildtools/common/helpers"
	"github.com/vub-hpc/buildtools/common/jobscript"
	"github.com/vub-hpc/buildtools/common/models"
	"github.com/vub-hpc/buildtools/common/runner"
	"github.com/vub-hpc/buildtools/common/slurm"
	"k8s.io/klog/v2"
)

/**
App holds what every command needs. The first group of fields is set up by main (or a test),
the last group is loaded by Load once the command line has been parsed
*/
type App struct {
	ctx      context.Context
	executor runner.Executor
	environ  []string
	workDir  string
	stdout   io.Writer
	stderr   io.Writer

	configFile   string
	topologyFile string

	config      *helpers.Config
	env         *helpers.Environment
	topology    *models.ClusterTopology
	redisClient *redis.Client
}

func SetupRedis(config *helpers.Config) (*redis.Client, error) {
	klog.V(1).Infof("Connecting to Redis on %s", config.Redis.Address)
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Address,
		Password: config.Redis.Password,
		DB:       config.Redis.DBNum,
	})

	_, err := client.Ping().Result()
	if err != nil {
		klog.Errorf("Could not contact Redis: %s", err)
		return nil, err
	}
	return client, nil
}

/**
read the environment, the site config and the cluster topology.
the config file comes from --config, then BUILD_TOOLS_CONFIG; without either the built-in defaults are used
*/
func (a *App) Load() error {
	env, envErr := helpers.EnvironmentFromList(a.environ)
	if envErr != nil {
		return &models.ConfigurationError{Reason: "could not understand the environment", Err: envErr}
	}
	a.env = env

	configFile := a.configFile
	if configFile == "" {
		configFile = env.ConfigFile
	}
	if configFile != "" {
		klog.V(1).Infof("Reading config from %s", configFile)
		config, readErr := helpers.ReadConfig(configFile)
		if readErr != nil {
			return &models.ConfigurationError{Reason: "no configuration, can't continue", Err: readErr}
		}
		a.config = config
	} else {
		a.config = helpers.DefaultConfig()
	}

	topologyFile := a.topologyFile
	if topologyFile == "" {
		topologyFile = a.config.TopologyPath(configFile)
	}
	if topologyFile != "" {
		topology, loadErr := models.LoadClusterTopology(topologyFile)
		if loadErr != nil {
			return loadErr
		}
		a.topology = topology
	} else {
		a.topology = models.DefaultClusterTopology()
	}

	klog.V(2).Infof("Configuration: %s", spew.Sdump(a.config))
	klog.V(2).Infof("Environment: %s", spew.Sdump(a.env))
	return nil
}

/**
connect to redis if it is configured. A build that can't be recorded still goes ahead
*/
func (a *App) recordStore() *models.BuildRecordStore {
	if !a.config.RedisEnabled() {
		return nil
	}
	if a.redisClient == nil {
		client, redisErr := SetupRedis(a.config)
		if redisErr != nil {
			klog.Warningf("Build records will not be kept: %s", redisErr)
			return nil
		}
		a.redisClient = client
	}
	return models.NewBuildRecordStore(a.redisClient, int64(a.config.MaxRecords))
}

func (a *App) Generator() *jobscript.Generator {
	return jobscript.NewGenerator(a.topology, jobscript.SitePaths{
		AppsRoot:     a.config.Paths.AppsRoot,
		AppsRealRoot: a.config.Paths.AppsRealRoot,
		LmodCacheCmd: a.config.Paths.LmodCacheCmd,
	})
}

func (a *App) Planner() *build.Planner {
	return build.NewPlanner(a.topology, a.config, a.env)
}

func (a *App) Builder(dryRun bool, keep bool) (*build.Builder, error) {
	builder := build.NewBuilder(
		a.Generator(),
		slurm.NewSubmitter(a.executor, dryRun, "", keep),
		a.executor,
		a.topology,
		a.recordStore(),
	)

	decoder, decoderErr := helpers.DecoderForName(a.config.StderrEncoding)
	if decoderErr != nil {
		return nil, &models.ConfigurationError{Reason: "unknown stderr encoding " + a.config.StderrEncoding, Err: decoderErr}
	}
	builder.SetStderrDecoder(decoder)
	builder.SetOutputs(a.stdout, a.stderr)
	return builder, nil
}

func (a *App) Close() {
	if a.redisClient != nil {
		a.redisClient.Close()
	}
}
