package pipeline

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/sitepub/internal/errors"
	"git.home.luguber.info/inful/sitepub/internal/logfields"
	"git.home.luguber.info/inful/sitepub/internal/metrics"
)

// RunStages executes stages in order, recording timing and stopping on the
// first failure. A stage never starts before its predecessor succeeded, so a
// failed build means augment and publish do not run and the hosting ref is
// untouched.
func RunStages(ctx context.Context, st *State, stages []StageDef, report *Report, rec metrics.Recorder) error {
	for i, stage := range stages {
		select {
		case <-ctx.Done():
			report.StageResults[stage.Name] = StageResultCanceled
			rec.IncStageResult(string(stage.Name), metrics.ResultCanceled)
			markSkipped(stages[i+1:], report)
			return errors.Wrap(ctx.Err(), errors.CategoryInternal, errors.SeverityFatal, "run canceled").
				WithContext("stage", string(stage.Name))
		default:
		}

		t0 := time.Now()
		err := stage.Fn(ctx, st)
		dur := time.Since(t0)
		report.StageDurations[stage.Name] = dur
		rec.ObserveStageDuration(string(stage.Name), dur)

		if err != nil {
			report.StageResults[stage.Name] = StageResultFatal
			rec.IncStageResult(string(stage.Name), metrics.ResultFatal)
			markSkipped(stages[i+1:], report)
			slog.Error("Stage failed",
				logfields.Stage(string(stage.Name)),
				logfields.RunID(report.RunID),
				logfields.Error(err))
			return err
		}

		report.StageResults[stage.Name] = StageResultSuccess
		rec.IncStageResult(string(stage.Name), metrics.ResultSuccess)
		slog.Debug("Stage completed",
			logfields.Stage(string(stage.Name)),
			logfields.DurationMS(float64(dur.Milliseconds())))
	}

	return nil
}

// markSkipped records the stages that never ran because an earlier one failed.
func markSkipped(rest []StageDef, report *Report) {
	for _, stage := range rest {
		report.StageResults[stage.Name] = StageResultSkipped
	}
}
