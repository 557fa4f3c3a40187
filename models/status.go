package models

import (
	"fmt"
	"sort"
)

// StageStatus is the status of one pipeline stage on a Video.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageProcessing StageStatus = "processing"
	StageComplete   StageStatus = "complete"
	StageError      StageStatus = "error"
)

// Stage names one of the four independent tracks on a Video.
type Stage string

const (
	StageScrape     Stage = "scrape"
	StageRemix      Stage = "remix"
	StageGeneration Stage = "generation"
	StageAssembly   Stage = "assembly"
)

// PipelineStages is the logical order of stages.
var PipelineStages = []Stage{StageScrape, StageRemix, StageGeneration, StageAssembly}

// Regeneration goes straight back to processing from complete or error.
// Self transitions are allowed so redelivered jobs can repeat their writes.
var allowedStageTransitions = map[StageStatus]map[StageStatus]bool{
	StagePending: {
		StagePending:    true,
		StageProcessing: true,
		StageError:      true, // cancelled before a worker picked it up
	},
	StageProcessing: {
		StageProcessing: true,
		StageComplete:   true,
		StageError:      true,
	},
	StageComplete: {
		StageComplete:   true,
		StageProcessing: true,
		StageError:      true, // regeneration cancelled
	},
	StageError: {
		StageError:      true,
		StageProcessing: true,
	},
}

func CanTransitionStage(from, to StageStatus) bool {
	next, ok := allowedStageTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// StageSourcesFor lists every status that may move to "to".
func StageSourcesFor(to StageStatus) []StageStatus {
	var out []StageStatus
	for from, next := range allowedStageTransitions {
		if next[to] {
			out = append(out, from)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Column is the re_videos column holding this stage's status.
func (s Stage) Column() string {
	return string(s) + "_status"
}

func (s Stage) Valid() bool {
	for _, st := range PipelineStages {
		if st == s {
			return true
		}
	}
	return false
}

// Predecessor returns the stage that must be complete before s may run.
func (s Stage) Predecessor() (Stage, bool) {
	for i, st := range PipelineStages {
		if st == s && i > 0 {
			return PipelineStages[i-1], true
		}
	}
	return "", false
}

// JobStatus is the lifecycle status of a queued Job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobError      JobStatus = "error"
	JobCancelled  JobStatus = "cancelled"
)

// A processing job returns to queued when the queue schedules a retry.
var allowedJobTransitions = map[JobStatus]map[JobStatus]bool{
	JobQueued: {
		JobQueued:     true,
		JobProcessing: true,
		JobError:      true,
		JobCancelled:  true,
	},
	JobProcessing: {
		JobProcessing: true,
		JobQueued:     true,
		JobComplete:   true,
		JobError:      true,
		JobCancelled:  true,
	},
	JobComplete:  {},
	JobError:     {},
	JobCancelled: {},
}

func CanTransitionJob(from, to JobStatus) bool {
	next, ok := allowedJobTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// JobSourcesFor lists every job status that may move to "to".
func JobSourcesFor(to JobStatus) []JobStatus {
	var out []JobStatus
	for from, next := range allowedJobTransitions {
		if next[to] {
			out = append(out, from)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobError || s == JobCancelled
}

// TransitionJob applies a status change in memory.
func TransitionJob(job *Job, to JobStatus) error {
	if !CanTransitionJob(job.Status, to) {
		return fmt.Errorf("invalid job status transition: %q -> %q (job_id=%s)", job.Status, to, job.ID)
	}
	job.Status = to
	return nil
}
