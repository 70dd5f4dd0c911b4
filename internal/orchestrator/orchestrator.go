// Package orchestrator owns the outer run loop: discover, reason, select,
// execute, learn, record. It wires the exploration driver, the reasoning
// engine and the collaborators, and always persists a run artifact, even
// when a collaborator dies mid-run.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dowser-cli/api/schemas"
	"github.com/xkilldash9x/dowser-cli/internal/config"
	"github.com/xkilldash9x/dowser-cli/internal/explorer"
	"github.com/xkilldash9x/dowser-cli/internal/reasoning"
	"github.com/xkilldash9x/dowser-cli/internal/store"
)

// Orchestrator drives one exploration run from first discovery to the final
// artifact write.
type Orchestrator struct {
	cfg      *config.Config
	ui       schemas.UICollaborator
	engine   *reasoning.Engine
	driver   *explorer.Driver
	artifact schemas.ArtifactStore
	logger   *zap.Logger
}

// New wires the orchestrator. All dependencies are required.
func New(
	cfg *config.Config,
	ui schemas.UICollaborator,
	engine *reasoning.Engine,
	driver *explorer.Driver,
	artifact schemas.ArtifactStore,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if cfg == nil || ui == nil || engine == nil || driver == nil || artifact == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:      cfg,
		ui:       ui,
		engine:   engine,
		driver:   driver,
		artifact: artifact,
		logger:   logger.Named("orchestrator"),
	}, nil
}

// Run explores the target until the router, the driver or the step ceiling
// stops it. The run artifact is written regardless of how the run ended; the
// returned error is non-nil only for unrecoverable setup failures (the very
// first discovery) or a failed artifact write.
func (o *Orchestrator) Run(ctx context.Context, target string) (*schemas.RunArtifact, error) {
	runID := uuid.NewString()
	startedAt := time.Now()
	state := schemas.NewAgentState(runID, target, o.cfg.Explorer.MaxSteps)

	o.logger.Info("Run starting",
		zap.String("run_id", runID),
		zap.String("target", target),
		zap.Int("max_steps", o.cfg.Explorer.MaxSteps))

	ui, err := o.ui.Discover(ctx, target)
	if err != nil {
		// Nothing was explored; there is no meaningful trace to keep.
		return nil, fmt.Errorf("initial discovery of %s failed: %w", target, err)
	}
	state.UI = ui

	stopReason := o.loop(ctx, state, target)

	artifact := store.FinishArtifact(state, startedAt, stopReason)
	// The artifact must survive run cancellation.
	if err := o.artifact.SaveRun(context.WithoutCancel(ctx), artifact); err != nil {
		return artifact, fmt.Errorf("failed to persist run artifact: %w", err)
	}

	o.logger.Info("Run finished",
		zap.String("run_id", runID),
		zap.Int("steps", state.Exec.StepCount),
		zap.String("final_control", string(artifact.FinalControl)),
		zap.String("stop_reason", stopReason))
	return artifact, nil
}

// loop runs reasoning cycles until something stops the run and returns the
// stop reason. Collaborator failures inside the loop end the run but keep
// the partial trace.
func (o *Orchestrator) loop(ctx context.Context, state *schemas.AgentState, target string) string {
	for {
		if err := ctx.Err(); err != nil {
			o.terminate(state, "run context cancelled")
			return "run context cancelled"
		}
		if !o.driver.AllowStep(state.Exec.StepCount) {
			o.terminate(state, "step ceiling reached")
			return "step ceiling reached"
		}

		cycle := o.engine.Cycle(ctx, state)
		if cycle.Control == schemas.ControlTerminate {
			return cycle.Reason
		}

		sel := o.driver.Select(state.UI, cycle.Decision)
		if sel.Terminate {
			o.terminate(state, sel.Reason)
			return sel.Reason
		}
		action := *sel.Action

		// Snapshot the pre-action state for the delta checks next cycle.
		// The cycle's anomalies name this action, not the one about to run.
		evaluated := state.Exec.LastAction()
		before := state.UI
		state.Exec.PreviousObservation = before.Observation

		result, err := o.ui.Execute(ctx, action)
		if err != nil {
			reason := fmt.Sprintf("execution session failed on %s: %v", action.ActionID, err)
			o.logger.Error("Execution session failed",
				zap.String("action", action.ActionID),
				zap.Error(err))
			o.terminate(state, reason)
			return reason
		}

		after, err := o.ui.Discover(ctx, target)
		if err != nil {
			reason := fmt.Sprintf("re-discovery failed after %s: %v", action.ActionID, err)
			o.logger.Error("Re-discovery failed",
				zap.String("action", action.ActionID),
				zap.Error(err))
			o.terminate(state, reason)
			return reason
		}

		state.UI = after
		state.Exec.StepCount++
		state.Exec.ActionHistory = append(state.Exec.ActionHistory, action.ActionID)
		state.Exec.LastResult = &result

		o.driver.LogTransition(action.ActionID, before, after)
		o.engine.Learn(ctx, state, evaluated, cycle.Signals, cycle.Anomalies)

		state.RecordStep(schemas.StepRecord{
			Step:        state.Exec.StepCount,
			Action:      action.ActionID,
			Observation: after.Observation,
			Anomalies:   cycle.Anomalies,
			Result:      &result,
			Decision:    cycle.Decision,
			RecordedAt:  time.Now(),
		})
	}
}

// terminate stamps the final control so the artifact explains why the run
// stopped even when the router never said TERMINATE itself.
func (o *Orchestrator) terminate(state *schemas.AgentState, reason string) {
	state.Decision = schemas.Decision{
		Control:   schemas.ControlTerminate,
		Source:    schemas.SourceExploration,
		Reasoning: reason,
	}
}
