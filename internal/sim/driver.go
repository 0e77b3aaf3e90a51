// Package sim runs scenarios end to end: it drives the traffic
// synthesizer step by step, routes every engine call through the
// coordinator, collects typed events, and computes final run metrics.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cybershield-labs/range-core/internal/defense"
	"github.com/cybershield-labs/range-core/internal/detect"
	"github.com/cybershield-labs/range-core/internal/netsim"
	"github.com/cybershield-labs/range-core/internal/offense"
	"github.com/cybershield-labs/range-core/internal/orchestrator"
	"github.com/cybershield-labs/range-core/pkg/config"
	"github.com/cybershield-labs/range-core/pkg/logger"
	"github.com/cybershield-labs/range-core/pkg/models"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

// Event types collected during a run.
const (
	EventNetworkTraffic   = "network_traffic"
	EventThreatDetected   = "threat_detected"
	EventDefenseResponse  = "defense_response"
	EventAttackSimulation = "attack_simulation"
)

var (
	// ErrNoScenario is returned when Start is called before LoadScenario.
	ErrNoScenario = errors.New("no scenario loaded")

	// ErrRunActive is returned when Start is called while a run is in
	// progress.
	ErrRunActive = errors.New("a run is already active")

	// ErrNoActiveRun is returned when Stop is called with nothing running.
	ErrNoActiveRun = errors.New("no active run")

	// ErrRunNotFound is returned when a run ID is not in the store.
	ErrRunNotFound = errors.New("run not found")
)

// Options tune a driver.
type Options struct {
	// Seed feeds every random draw in the simulation. Zero seeds from the
	// wall clock.
	Seed int64
	// StepDelay is the pause between simulation steps.
	StepDelay time.Duration
}

// Driver owns the synthesizer, the engines, and the run store. All engine
// calls go through the coordinator's executor, the same path workflow
// steps take.
type Driver struct {
	log         *slog.Logger
	rng         *utils.RandSource
	synth       *netsim.Synthesizer
	coordinator *orchestrator.Coordinator
	exec        orchestrator.StepExecutor
	stepDelay   time.Duration

	mu       sync.Mutex
	scenario *config.Scenario
	current  *models.RunResult
	stopping bool
	runs     map[string]*models.RunResult
}

// NewDriver wires a full engine set under a coordinator and activates it.
func NewDriver(opts Options) *Driver {
	rng := utils.NewRandSource(opts.Seed)

	coordinator := orchestrator.NewCoordinator(rng)
	coordinator.Activate()

	detection := detect.NewEngine(rng)
	def := defense.NewEngine(rng)
	off := offense.NewEngine(rng)
	for _, a := range []interface{ Activate() }{detection, def, off} {
		a.Activate()
	}
	coordinator.Register(orchestrator.AgentDetection, detection)
	coordinator.Register(orchestrator.AgentDefense, def)
	coordinator.Register(orchestrator.AgentOffense, off)

	return &Driver{
		log:         logger.With("component", "driver"),
		rng:         rng,
		synth:       netsim.New(rng),
		coordinator: coordinator,
		exec:        coordinator,
		stepDelay:   opts.StepDelay,
		runs:        map[string]*models.RunResult{},
	}
}

// Coordinator exposes the orchestrator for workflow-level use.
func (d *Driver) Coordinator() *orchestrator.Coordinator {
	return d.coordinator
}

// LoadScenario installs a scenario: the synthesizer regenerates its
// topology and every engine is reset for a clean run.
func (d *Driver) LoadScenario(scenario *config.Scenario) error {
	if scenario == nil {
		return ErrNoScenario
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil && d.current.Status == models.RunStatusRunning {
		return ErrRunActive
	}

	d.synth.Reset(scenario.NetworkParams)
	if _, err := d.exec.Execute(orchestrator.AgentCoordinator, string(orchestrator.OpSetScenario),
		map[string]any{"scenario": scenario}); err != nil {
		return fmt.Errorf("setting scenario: %w", err)
	}

	d.scenario = scenario
	d.log.Info("scenario loaded", "scenario_id", scenario.ID, "type", scenario.Type, "max_steps", scenario.MaxSteps)
	return nil
}

// Start runs the loaded scenario to completion: until max steps, the
// duration budget, a Stop call, or context cancellation. It blocks and
// returns the finished run.
func (d *Driver) Start(ctx context.Context, duration time.Duration) (*models.RunResult, error) {
	d.mu.Lock()
	if d.scenario == nil {
		d.mu.Unlock()
		return nil, ErrNoScenario
	}
	if d.current != nil && d.current.Status == models.RunStatusRunning {
		d.mu.Unlock()
		return nil, ErrRunActive
	}

	run := &models.RunResult{
		RunID:      utils.GenerateRunID(),
		ScenarioID: d.scenario.ID,
		Status:     models.RunStatusRunning,
		StartTime:  time.Now(),
	}
	d.current = run
	d.stopping = false
	scenario := d.scenario
	d.mu.Unlock()

	d.log.Info("run started", "run_id", run.RunID, "scenario_id", scenario.ID)

	var attackOutcome *offense.SimulationOutcome
	deadline := time.Time{}
	if duration > 0 {
		deadline = run.StartTime.Add(duration)
	}

	var runErr error
loop:
	for step := 0; step < scenario.MaxSteps; step++ {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		default:
		}
		if d.shouldStop() {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}

		if err := d.step(run, scenario, step, &attackOutcome); err != nil {
			runErr = err
			break
		}
		run.Steps = step + 1

		if d.stepDelay > 0 {
			select {
			case <-ctx.Done():
				runErr = ctx.Err()
				break loop
			case <-time.After(d.stepDelay):
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	run.EndTime = time.Now()
	switch {
	case runErr != nil:
		run.Status = models.RunStatusError
		run.Error = runErr.Error()
	case d.stopping:
		run.Status = models.RunStatusStopped
	default:
		run.Status = models.RunStatusCompleted
	}
	run.Metrics = computeMetrics(run, attackOutcome)
	d.runs[run.RunID] = run
	d.current = run

	d.log.Info("run finished",
		"run_id", run.RunID,
		"status", run.Status,
		"steps", run.Steps,
		"events", len(run.Events))

	if runErr != nil {
		return run, runErr
	}
	return run, nil
}

// step executes one simulation step: traffic, detection, defense when
// threats surface, and the scenario's attack simulation at step zero.
func (d *Driver) step(run *models.RunResult, scenario *config.Scenario, step int, attackOutcome **offense.SimulationOutcome) error {
	traffic := d.synth.GenerateTraffic(step)
	d.addEvent(run, EventNetworkTraffic, step, map[string]any{"volume": len(traffic)})

	result, err := d.exec.Execute(orchestrator.AgentDetection, string(detect.OpAnalyzeTraffic),
		map[string]any{"traffic_data": traffic})
	if err != nil {
		return fmt.Errorf("step %d detection: %w", step, err)
	}
	analysis, _ := result.(*detect.AnalysisResult)

	if analysis != nil && len(analysis.DetectedThreats) > 0 {
		d.addEvent(run, EventThreatDetected, step, map[string]any{
			"threats":      analysis.DetectedThreats,
			"threat_level": analysis.ThreatLevel,
		})

		defResult, err := d.exec.Execute(orchestrator.AgentDefense, string(defense.OpAttackDetected),
			map[string]any{"threats": analysis.DetectedThreats})
		if err != nil {
			return fmt.Errorf("step %d defense: %w", step, err)
		}
		if response, ok := defResult.(*defense.AttackResponse); ok {
			d.addEvent(run, EventDefenseResponse, step, map[string]any{
				"countermeasures": response.Countermeasures,
			})
		}
	}

	if step == 0 && scenarioRunsAttack(scenario) {
		offResult, err := d.exec.Execute(orchestrator.AgentOffense, string(offense.OpAttackSimulation), map[string]any{
			"attack_type": scenario.AttackParams.AttackType,
			"defenses":    scenario.AttackParams.DefenseMeasures,
		})
		if err != nil {
			return fmt.Errorf("step %d attack simulation: %w", step, err)
		}
		if outcome, ok := offResult.(*offense.SimulationOutcome); ok {
			*attackOutcome = outcome
			d.addEvent(run, EventAttackSimulation, step, map[string]any{
				"attack_type":         outcome.AttackType,
				"outcome":             outcome.Outcome,
				"success_probability": outcome.SuccessProbability,
				"steps":               len(outcome.Path),
			})
		}
	}

	return nil
}

func scenarioRunsAttack(scenario *config.Scenario) bool {
	return scenario.Type == "attack_simulation" || scenario.Type == "training_session"
}

func (d *Driver) addEvent(run *models.RunResult, eventType string, step int, data map[string]any) {
	run.Events = append(run.Events, models.StepEvent{
		Type:      eventType,
		Step:      step,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// Stop requests a graceful halt of the active run.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil || d.current.Status != models.RunStatusRunning {
		return ErrNoActiveRun
	}
	d.stopping = true
	d.log.Info("stop requested", "run_id", d.current.RunID)
	return nil
}

func (d *Driver) shouldStop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopping
}

// Run returns a finished run by ID.
func (d *Driver) Run(runID string) (*models.RunResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	run, ok := d.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// Runs lists all stored runs.
func (d *Driver) Runs() []*models.RunResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*models.RunResult, 0, len(d.runs))
	for _, run := range d.runs {
		out = append(out, run)
	}
	return out
}

// computeMetrics derives the final aggregates from the collected events.
func computeMetrics(run *models.RunResult, attackOutcome *offense.SimulationOutcome) *models.RunMetrics {
	metrics := &models.RunMetrics{
		TotalSteps:  run.Steps,
		EventCounts: map[string]int{},
	}

	threatEvents, defenseEvents := 0, 0
	countermeasures := map[string]struct{}{}
	for _, event := range run.Events {
		metrics.EventCounts[event.Type]++

		switch event.Type {
		case EventNetworkTraffic:
			if volume, ok := event.Data["volume"].(int); ok {
				metrics.TrafficVolume += volume
			}
		case EventThreatDetected:
			threatEvents++
			if threats, ok := event.Data["threats"].([]models.ThreatAlert); ok {
				metrics.ThreatsDetected += len(threats)
			}
		case EventDefenseResponse:
			defenseEvents++
			if cms, ok := event.Data["countermeasures"].([]defense.Countermeasure); ok {
				for _, cm := range cms {
					countermeasures[cm.Action] = struct{}{}
				}
			}
		}
	}
	metrics.CountermeasureVariety = len(countermeasures)
	if threatEvents > 0 {
		metrics.DefenseCoverage = float64(defenseEvents) / float64(threatEvents)
	}

	if attackOutcome != nil {
		metrics.AttackStepsEncountered = len(attackOutcome.Path)
		detected := 0
		for _, s := range attackOutcome.Path {
			if s.Detected {
				detected++
			}
		}
		if len(attackOutcome.Path) > 0 {
			metrics.DetectionRate = float64(detected) / float64(len(attackOutcome.Path))
		}
		metrics.AttackOutcome = attackOutcome.Outcome
		metrics.AttackSuccessProbability = attackOutcome.SuccessProbability
		metrics.AttackEvasionRate = attackOutcome.EvasionRate
	}

	return metrics
}
