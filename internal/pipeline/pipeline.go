// Package pipeline sequences the build-and-publish stages of one run.
//
// A run is strictly linear: acquire source, build, optionally verify, augment,
// publish. Failure at any stage aborts all later stages, so the hosting ref is
// only ever touched by a run whose every earlier stage succeeded. There is no
// retry inside the pipeline; re-running is the trigger layer's concern.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/sitepub/internal/augment"
	"git.home.luguber.info/inful/sitepub/internal/builder"
	"git.home.luguber.info/inful/sitepub/internal/config"
	"git.home.luguber.info/inful/sitepub/internal/errors"
	"git.home.luguber.info/inful/sitepub/internal/logfields"
	"git.home.luguber.info/inful/sitepub/internal/metrics"
	"git.home.luguber.info/inful/sitepub/internal/publish"
	"git.home.luguber.info/inful/sitepub/internal/source"
	"git.home.luguber.info/inful/sitepub/internal/verify"
	"git.home.luguber.info/inful/sitepub/internal/workspace"
)

// Verifier checks an artifact tree between build and augment.
type Verifier interface {
	Verify(ctx context.Context, artifactPath string) error
}

// PublishSummary is the result of a successful run.
type PublishSummary struct {
	RunID    string           `json:"run_id"`
	Trigger  string           `json:"trigger"`
	Ref      string           `json:"ref"`
	Revision string           `json:"revision"`
	Files    int              `json:"files"`
	NoChange bool             `json:"no_change"`
	Duration time.Duration    `json:"duration"`
	Report   *Report          `json:"report,omitempty"`
	Outcome  *publish.Outcome `json:"-"`
}

// Pipeline wires the stage implementations for a configuration. Components
// left nil are constructed per run from the config; tests inject fakes.
type Pipeline struct {
	cfg       *config.Config
	recorder  metrics.Recorder
	acquirer  source.Acquirer
	builder   builder.Builder
	verifier  Verifier
	augmentor augment.Augmentor
	publisher publish.Publisher
}

// Option customizes a Pipeline, primarily for tests.
type Option func(*Pipeline)

func WithAcquirer(a source.Acquirer) Option    { return func(p *Pipeline) { p.acquirer = a } }
func WithBuilder(b builder.Builder) Option     { return func(p *Pipeline) { p.builder = b } }
func WithVerifier(v Verifier) Option           { return func(p *Pipeline) { p.verifier = v } }
func WithAugmentor(a augment.Augmentor) Option { return func(p *Pipeline) { p.augmentor = a } }
func WithPublisher(pub publish.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}
func WithRecorder(r metrics.Recorder) Option { return func(p *Pipeline) { p.recorder = r } }

// New creates a pipeline for the configuration.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{cfg: cfg, recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one pipeline run. On success the hosting ref holds the new
// tree; on any failure it is untouched and the error carries the failed
// stage's category.
func (p *Pipeline) Run(ctx context.Context, trigger string) (*PublishSummary, error) {
	runID := uuid.NewString()
	report := NewReport(runID, trigger)

	slog.Info("Starting pipeline run",
		logfields.RunID(runID),
		logfields.Trigger(trigger))

	ws := workspace.NewManager("")
	if err := ws.Create(); err != nil {
		return nil, errors.WorkspaceError("create", err)
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			slog.Warn("Failed to cleanup workspace", logfields.Error(err))
		}
	}()

	acquirer := p.acquirer
	if acquirer == nil {
		acquirer = source.NewAcquirer(p.cfg.Source, ws.GetPath())
	}
	bld := p.builder
	if bld == nil {
		bld = builder.New(p.cfg.Generator)
	}
	verifier := p.verifier
	if verifier == nil && p.cfg.Verify.Enabled {
		verifier = verify.NewLinkChecker(p.cfg.Verify.FailOnBroken)
	}
	publisher := p.publisher
	if publisher == nil {
		publisher = publish.NewGitPublisher(p.cfg.Publish, ws.GetPath())
	}

	st := &State{}
	stages := []StageDef{
		{Name: StageAcquireSource, Fn: func(ctx context.Context, st *State) error {
			path, err := acquirer.Acquire(ctx)
			if err != nil {
				return err
			}
			st.SourcePath = path
			return nil
		}},
		{Name: StageBuild, Fn: func(ctx context.Context, st *State) error {
			path, err := bld.Build(ctx, st.SourcePath)
			if err != nil {
				return err
			}
			st.ArtifactPath = path
			return nil
		}},
	}
	if verifier != nil {
		stages = append(stages, StageDef{Name: StageVerify, Fn: func(ctx context.Context, st *State) error {
			return verifier.Verify(ctx, st.ArtifactPath)
		}})
	}
	stages = append(stages,
		StageDef{Name: StageAugment, Fn: func(ctx context.Context, st *State) error {
			aug := p.augmentor
			if aug == nil {
				// The descriptor lives in the source tree, so the augmentor is
				// anchored once the source path is known.
				aug = augment.New(p.cfg.Descriptor, st.SourcePath)
			}
			return aug.Augment(ctx, st.ArtifactPath)
		}},
		StageDef{Name: StagePublish, Fn: func(ctx context.Context, st *State) error {
			outcome, err := publisher.Publish(ctx, st.ArtifactPath)
			if err != nil {
				return err
			}
			st.Outcome = outcome
			return nil
		}},
	)

	err := RunStages(ctx, st, stages, report, p.recorder)
	report.Finish()
	p.recorder.ObserveRunDuration(report.Duration())
	p.recorder.IncRunOutcome(report.Outcome)

	if err != nil {
		slog.Error("Pipeline run failed",
			logfields.RunID(runID),
			logfields.DurationMS(float64(report.Duration().Milliseconds())),
			logfields.Error(err))
		return nil, err
	}

	p.recorder.IncPublish(st.Outcome.NoChange)

	summary := &PublishSummary{
		RunID:    runID,
		Trigger:  trigger,
		Ref:      st.Outcome.Ref,
		Revision: st.Outcome.Revision,
		Files:    st.Outcome.Files,
		NoChange: st.Outcome.NoChange,
		Duration: report.Duration(),
		Report:   report,
		Outcome:  st.Outcome,
	}

	slog.Info("Pipeline run completed",
		logfields.RunID(runID),
		logfields.Ref(summary.Ref),
		logfields.Revision(summary.Revision),
		slog.Bool("no_change", summary.NoChange),
		logfields.DurationMS(float64(summary.Duration.Milliseconds())))
	return summary, nil
}
