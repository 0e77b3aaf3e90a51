package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybershield-labs/range-core/pkg/config"
	"github.com/cybershield-labs/range-core/pkg/models"
)

func testScenario(scenarioType string, maxSteps int) *config.Scenario {
	return &config.Scenario{
		ID:         "scn-test",
		Name:       "driver test scenario",
		Type:       scenarioType,
		Difficulty: "medium",
		MaxSteps:   maxSteps,
		NetworkParams: config.NetworkParams{
			ServerCount:       3,
			EndpointCount:     5,
			ThreatActorCount:  2,
			MaliciousRatio:    0.1,
			TrafficRate:       5,
			AttackProbability: 0.5,
		},
		AttackParams: config.AttackParams{
			AttackType: "ransomware",
			DefenseMeasures: map[string]float64{
				"firewall_rules":    0.8,
				"ids_configuration": 0.75,
			},
		},
	}
}

func TestStartWithoutScenario(t *testing.T) {
	d := NewDriver(Options{Seed: 42})

	_, err := d.Start(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoScenario)
}

func TestStopWithoutActiveRun(t *testing.T) {
	d := NewDriver(Options{Seed: 42})

	assert.ErrorIs(t, d.Stop(), ErrNoActiveRun)
}

func TestLoadScenarioNil(t *testing.T) {
	d := NewDriver(Options{Seed: 42})

	assert.ErrorIs(t, d.LoadScenario(nil), ErrNoScenario)
}

func TestRunCompletesAtMaxSteps(t *testing.T) {
	d := NewDriver(Options{Seed: 42})
	require.NoError(t, d.LoadScenario(testScenario("attack_simulation", 10)))

	run, err := d.Start(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 10, run.Steps)
	assert.Equal(t, "scn-test", run.ScenarioID)
	assert.NotEmpty(t, run.RunID)
	assert.False(t, run.EndTime.Before(run.StartTime))

	require.NotNil(t, run.Metrics)
	assert.Equal(t, 10, run.Metrics.TotalSteps)
	assert.Equal(t, 10, run.Metrics.EventCounts[EventNetworkTraffic])
	assert.Greater(t, run.Metrics.TrafficVolume, 0)
}

func TestAttackScenarioRunsSimulationOnce(t *testing.T) {
	d := NewDriver(Options{Seed: 42})
	require.NoError(t, d.LoadScenario(testScenario("attack_simulation", 5)))

	run, err := d.Start(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Metrics.EventCounts[EventAttackSimulation])
	assert.Greater(t, run.Metrics.AttackStepsEncountered, 0)
	assert.Contains(t, []string{"successful", "partially_successful", "failed"}, run.Metrics.AttackOutcome)
	assert.GreaterOrEqual(t, run.Metrics.DetectionRate, 0.0)
	assert.LessOrEqual(t, run.Metrics.DetectionRate, 1.0)
}

func TestTrainingScenarioAlsoRunsAttack(t *testing.T) {
	d := NewDriver(Options{Seed: 7})
	require.NoError(t, d.LoadScenario(testScenario("training_session", 3)))

	run, err := d.Start(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Metrics.EventCounts[EventAttackSimulation])
}

func TestDurationBudgetEndsRunEarly(t *testing.T) {
	d := NewDriver(Options{Seed: 42, StepDelay: 2 * time.Millisecond})
	require.NoError(t, d.LoadScenario(testScenario("attack_simulation", 100000)))

	run, err := d.Start(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Less(t, run.Steps, 100000)
	assert.Greater(t, run.Steps, 0)
}

func TestStopHaltsRun(t *testing.T) {
	d := NewDriver(Options{Seed: 42, StepDelay: 2 * time.Millisecond})
	require.NoError(t, d.LoadScenario(testScenario("attack_simulation", 100000)))

	done := make(chan *models.RunResult, 1)
	go func() {
		run, _ := d.Start(context.Background(), 0)
		done <- run
	}()

	// let a few steps pass before stopping
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, d.Stop())

	select {
	case run := <-done:
		assert.Equal(t, models.RunStatusStopped, run.Status)
		assert.Greater(t, run.Steps, 0)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestContextCancellationMarksRunError(t *testing.T) {
	d := NewDriver(Options{Seed: 42, StepDelay: 2 * time.Millisecond})
	require.NoError(t, d.LoadScenario(testScenario("attack_simulation", 100000)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	run, err := d.Start(ctx, 0)
	require.Error(t, err)
	assert.Equal(t, models.RunStatusError, run.Status)
	assert.NotEmpty(t, run.Error)
}

func TestRunStore(t *testing.T) {
	d := NewDriver(Options{Seed: 42})
	require.NoError(t, d.LoadScenario(testScenario("attack_simulation", 3)))

	run, err := d.Start(context.Background(), 0)
	require.NoError(t, err)

	stored, err := d.Run(run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, stored.RunID)

	_, err = d.Run("run-missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.Len(t, d.Runs(), 1)
}

func TestDefenseCoverageBounds(t *testing.T) {
	d := NewDriver(Options{Seed: 42})
	require.NoError(t, d.LoadScenario(testScenario("attack_simulation", 50)))

	run, err := d.Start(context.Background(), 0)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, run.Metrics.DefenseCoverage, 0.0)
	assert.LessOrEqual(t, run.Metrics.DefenseCoverage, 1.0)
	if run.Metrics.EventCounts[EventThreatDetected] > 0 {
		assert.Greater(t, run.Metrics.CountermeasureVariety, 0)
	}
}

func TestDeterministicRuns(t *testing.T) {
	runOnce := func() *models.RunResult {
		d := NewDriver(Options{Seed: 11})
		require.NoError(t, d.LoadScenario(testScenario("attack_simulation", 20)))
		run, err := d.Start(context.Background(), 0)
		require.NoError(t, err)
		return run
	}

	a, b := runOnce(), runOnce()
	assert.Equal(t, a.Steps, b.Steps)
	assert.Equal(t, a.Metrics.TrafficVolume, b.Metrics.TrafficVolume)
	assert.Equal(t, a.Metrics.ThreatsDetected, b.Metrics.ThreatsDetected)
	assert.Equal(t, a.Metrics.AttackOutcome, b.Metrics.AttackOutcome)
	assert.Equal(t, a.Metrics.AttackSuccessProbability, b.Metrics.AttackSuccessProbability)
}
