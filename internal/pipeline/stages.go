package pipeline

import (
	"context"
	"time"

	"git.home.luguber.info/inful/sitepub/internal/publish"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StageAcquireSource StageName = "acquire_source"
	StageBuild         StageName = "build"
	StageVerify        StageName = "verify"
	StageAugment       StageName = "augment"
	StagePublish       StageName = "publish"
)

// StageResult captures the high-level outcome of a stage.
type StageResult string

const (
	StageResultSuccess  StageResult = "success"
	StageResultFatal    StageResult = "fatal"
	StageResultCanceled StageResult = "canceled"
	StageResultSkipped  StageResult = "skipped"
)

// State is the data handed forward through the stages of one run. Each stage
// reads what its predecessor produced and fills in its own output.
type State struct {
	SourcePath   string
	ArtifactPath string
	Outcome      *publish.Outcome
}

// StageDef pairs a stage name with its executing function.
type StageDef struct {
	Name StageName
	Fn   func(ctx context.Context, st *State) error
}

// Report accumulates per-stage timing and results for one run.
type Report struct {
	RunID          string                      `json:"run_id"`
	Trigger        string                      `json:"trigger"`
	StartedAt      time.Time                   `json:"started_at"`
	FinishedAt     time.Time                   `json:"finished_at"`
	StageDurations map[StageName]time.Duration `json:"stage_durations"`
	StageResults   map[StageName]StageResult   `json:"stage_results"`
	Outcome        string                      `json:"outcome"` // success|failed|canceled
}

// NewReport creates an empty report for a run.
func NewReport(runID, trigger string) *Report {
	return &Report{
		RunID:          runID,
		Trigger:        trigger,
		StartedAt:      time.Now(),
		StageDurations: make(map[StageName]time.Duration),
		StageResults:   make(map[StageName]StageResult),
	}
}

// Finish stamps the end time and derives the overall outcome.
func (r *Report) Finish() {
	r.FinishedAt = time.Now()
	r.Outcome = "success"
	for _, res := range r.StageResults {
		switch res {
		case StageResultCanceled:
			r.Outcome = "canceled"
			return
		case StageResultFatal:
			r.Outcome = "failed"
		}
	}
}

// Duration returns the total run duration.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
