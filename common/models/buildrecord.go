package models

import (
	"time"

	"github.com/google/uuid"
)

type BuildMode string

const (
	MODE_SUBMIT  BuildMode = "submit"
	MODE_LOCAL   BuildMode = "local"
	MODE_DRY_RUN BuildMode = "dry-run"
)

/**
BuildRecord is the summary of one build job that we keep around for the `history` command.
SlurmJobId and CacheJobId are empty when nothing was queued
*/
type BuildRecord struct {
	Id            uuid.UUID `json:"id"`
	Time          time.Time `json:"time"`
	JobName       string    `json:"jobName"`
	Easyconfig    string    `json:"easyconfig"`
	Arch          string    `json:"arch"`
	TargetArch    string    `json:"targetArch"`
	Partition     string    `json:"partition"`
	Mode          BuildMode `json:"mode"`
	SlurmJobId    string    `json:"slurmJobId,omitempty"`
	ExitCode      int       `json:"exitCode"`
	Success       bool      `json:"success"`
	Modules       []string  `json:"modules,omitempty"`
	CacheJobId    string    `json:"cacheJobId,omitempty"`
	CacheJobError string    `json:"cacheJobError,omitempty"`
}

func NewBuildRecord(cfg JobConfig, mode BuildMode) BuildRecord {
	return BuildRecord{
		Id:         uuid.New(),
		Time:       time.Now().UTC(),
		JobName:    cfg.JobName,
		Easyconfig: cfg.Easyconfig,
		Arch:       cfg.Arch,
		TargetArch: cfg.TargetArch,
		Partition:  cfg.Partition,
		Mode:       mode,
	}
}

/**
fill in the fields that come from a completed build
*/
func (r *BuildRecord) SetResult(result BuildResult) {
	r.ExitCode = result.ExitCode
	r.Success = result.Succeeded()
	r.Modules = result.ModuleNames()
}
