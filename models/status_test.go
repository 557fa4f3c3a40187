package models

import "testing"

func TestCanTransitionStage_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from StageStatus
		to   StageStatus
	}{
		{StagePending, StageProcessing},
		{StageProcessing, StageComplete},
		{StageProcessing, StageError},
		{StageComplete, StageProcessing},
		{StageError, StageProcessing},
		{StageProcessing, StageProcessing},
	}

	for _, tc := range cases {
		if !CanTransitionStage(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransitionStage_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from StageStatus
		to   StageStatus
	}{
		{StagePending, StageComplete},
		{StageComplete, StagePending},
		{StageError, StageComplete},
		{"bogus", StageProcessing},
	}

	for _, tc := range cases {
		if CanTransitionStage(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestStageSourcesFor(t *testing.T) {
	got := StageSourcesFor(StageComplete)
	if len(got) != 2 || got[0] != StageComplete || got[1] != StageProcessing {
		t.Fatalf("unexpected sources for complete: %v", got)
	}
}

func TestJobStatus_TerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range []JobStatus{JobComplete, JobError, JobCancelled} {
		if !from.Terminal() {
			t.Fatalf("expected %q to be terminal", from)
		}
		for _, to := range []JobStatus{JobQueued, JobProcessing, JobComplete, JobError, JobCancelled} {
			if CanTransitionJob(from, to) {
				t.Fatalf("expected terminal %q -> %q to be rejected", from, to)
			}
		}
	}
}

func TestTransitionJob_BlocksIllegalTransition(t *testing.T) {
	job := Job{ID: "job-1", Status: JobComplete}
	if err := TransitionJob(&job, JobProcessing); err == nil {
		t.Fatalf("expected illegal transition error")
	}

	job.Status = JobProcessing
	if err := TransitionJob(&job, JobQueued); err != nil {
		t.Fatalf("retry transition rejected: %v", err)
	}
}

func TestStagePredecessor(t *testing.T) {
	if _, ok := StageScrape.Predecessor(); ok {
		t.Fatalf("scrape has no predecessor")
	}
	if p, ok := StageRemix.Predecessor(); !ok || p != StageScrape {
		t.Fatalf("remix predecessor = %q, %v", p, ok)
	}
	if p, _ := StageAssembly.Predecessor(); p != StageGeneration {
		t.Fatalf("assembly predecessor = %q", p)
	}
}
