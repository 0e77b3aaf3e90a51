package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybershield-labs/range-core/internal/agent"
	"github.com/cybershield-labs/range-core/internal/defense"
	"github.com/cybershield-labs/range-core/internal/detect"
	"github.com/cybershield-labs/range-core/internal/offense"
	"github.com/cybershield-labs/range-core/pkg/config"
	"github.com/cybershield-labs/range-core/pkg/models"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

// newTestCoordinator wires all three engines active under a coordinator.
func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	rng := utils.NewRandSource(42)

	c := NewCoordinator(rng)
	c.Activate()

	for id, a := range map[string]agent.Agent{
		AgentDetection: detect.NewEngine(rng),
		AgentDefense:   defense.NewEngine(rng),
		AgentOffense:   offense.NewEngine(rng),
	} {
		a.Activate()
		c.Register(id, a)
	}
	return c
}

func maliciousTraffic(n int) []models.TrafficRecord {
	records := make([]models.TrafficRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, models.TrafficRecord{
			SourceIP:      "203.0.113.7",
			DestinationIP: "192.168.1.10",
			Protocol:      "tcp",
			Port:          4444,
			PayloadSize:   2000,
			Timestamp:     time.Now(),
			IsMalicious:   true,
			Confidence:    0.9,
		})
	}
	return records
}

func TestReadinessNoAgents(t *testing.T) {
	c := NewCoordinator(utils.NewRandSource(1))
	c.Activate()

	assert.Zero(t, c.systemReadiness())
}

func TestReadinessEssentialOnly(t *testing.T) {
	c := newTestCoordinator(t)

	assert.InDelta(t, 0.7, c.systemReadiness(), 1e-9)
}

func TestReadinessWeighsOtherAgents(t *testing.T) {
	c := newTestCoordinator(t)

	extra := detect.NewEngine(utils.NewRandSource(2))
	c.Register("analytics", extra)

	// registered but inactive: only the 0.3 share denominator grows
	assert.InDelta(t, 0.7, c.systemReadiness(), 1e-9)

	extra.Activate()
	assert.InDelta(t, 1.0, c.systemReadiness(), 1e-9)
}

func TestReadinessDegradesWithInactiveEssential(t *testing.T) {
	c := newTestCoordinator(t)

	a, ok := c.Agent(AgentOffense)
	require.True(t, ok)
	a.Deactivate()

	assert.InDelta(t, 0.7*2.0/3.0, c.systemReadiness(), 1e-9)
}

func TestStartWorkflowUnknownType(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.StartWorkflow("coffee_break", nil)
	assert.ErrorIs(t, err, agent.ErrUnknownOperation)
}

func TestStartWorkflowMissingAgentsFailsFast(t *testing.T) {
	c := NewCoordinator(utils.NewRandSource(1))
	c.Activate()

	det := detect.NewEngine(utils.NewRandSource(1))
	det.Activate()
	c.Register(AgentDetection, det)

	_, err := c.StartWorkflow("threat_detection", nil)
	require.ErrorIs(t, err, agent.ErrMissingDependency)
	assert.Contains(t, err.Error(), AgentDefense)
	assert.Nil(t, c.activeWorkflow, "a rejected workflow must not become active")
}

func TestThreatDetectionWorkflow(t *testing.T) {
	c := newTestCoordinator(t)

	state, err := c.StartWorkflow("threat_detection", map[string]any{
		"traffic_data": maliciousTraffic(5),
		"attack_type":  "brute_force",
	})
	require.NoError(t, err)

	assert.Equal(t, WorkflowCompleted, state.Status)
	require.Len(t, state.Steps, 2)

	step0 := state.Steps["step_0"]
	assert.Equal(t, AgentDetection, step0.Agent)
	assert.Equal(t, "success", step0.Status)
	_, ok := step0.Results.(*detect.AnalysisResult)
	assert.True(t, ok)

	step1 := state.Steps["step_1"]
	assert.Equal(t, AgentDefense, step1.Agent)
	assert.Equal(t, "success", step1.Status)
}

func TestWorkflowHaltLeavesPartialResults(t *testing.T) {
	c := newTestCoordinator(t)

	// benign traffic finds nothing, so the defense step has no input
	benign := []models.TrafficRecord{{
		SourceIP: "192.168.1.2", DestinationIP: "192.168.1.3",
		Protocol: "http", Port: 80, PayloadSize: 500, Timestamp: time.Now(),
	}}
	state, err := c.StartWorkflow("threat_detection", map[string]any{"traffic_data": benign})
	require.Error(t, err)
	require.NotNil(t, state)

	assert.Equal(t, WorkflowInProgress, state.Status)
	assert.Equal(t, "success", state.Steps["step_0"].Status)
	assert.Equal(t, "error", state.Steps["step_1"].Status)
	assert.NotEmpty(t, state.Steps["step_1"].Error)
}

func TestAttackSimulationWorkflowChainsPath(t *testing.T) {
	c := newTestCoordinator(t)

	state, err := c.StartWorkflow("attack_simulation", map[string]any{
		"attack_type": "ransomware",
		"defenses":    map[string]float64{"firewall_rules": 0.8},
	})
	require.NoError(t, err)
	assert.Equal(t, WorkflowCompleted, state.Status)
	require.Len(t, state.Steps, 3)

	sim, ok := state.Steps["step_0"].Results.(*offense.SimulationOutcome)
	require.True(t, ok)

	detection, ok := state.Steps["step_1"].Results.(*detect.SimulationResult)
	require.True(t, ok)
	assert.Equal(t, len(sim.Path), detection.Summary.TotalSteps)
}

func TestVulnerabilityAssessmentWorkflow(t *testing.T) {
	c := newTestCoordinator(t)

	targets := []config.TargetSystem{{Type: "server", Services: []config.TargetService{{Name: "http", Port: 80}}}}
	state, err := c.StartWorkflow("vulnerability_assessment", map[string]any{"targets": targets})
	require.NoError(t, err)
	assert.Equal(t, WorkflowCompleted, state.Status)

	scan, ok := state.Steps["step_1"].Results.(*defense.ScanResponse)
	require.True(t, ok)
	assert.NotEmpty(t, scan.PrioritizedActions)
}

func TestTrainingSessionWorkflow(t *testing.T) {
	c := newTestCoordinator(t)

	state, err := c.StartWorkflow("training_session", map[string]any{
		"attack_type": "data_exfiltration",
		"defenses":    map[string]float64{"ids_configuration": 0.75},
	})
	require.NoError(t, err)
	assert.Equal(t, WorkflowCompleted, state.Status)
	require.Len(t, state.Steps, 4)

	evaluation, ok := state.Steps["step_3"].Results.(*TrainingEvaluation)
	require.True(t, ok)
	assert.GreaterOrEqual(t, evaluation.DefenseScore, 0.0)
	assert.LessOrEqual(t, evaluation.DefenseScore, 1.0)
}

func TestCheckStatusSystemBlock(t *testing.T) {
	c := newTestCoordinator(t)

	result, err := c.CheckStatus("")
	require.NoError(t, err)
	status, ok := result.(SystemStatus)
	require.True(t, ok)

	assert.Equal(t, 3, status.ActiveAgents)
	assert.Equal(t, 3, status.TotalAgents)
	assert.Equal(t, "N/A", status.WorkflowProgress)

	_, err = c.StartWorkflow("attack_simulation", map[string]any{"attack_type": "generic"})
	require.NoError(t, err)

	result, err = c.CheckStatus("")
	require.NoError(t, err)
	status = result.(SystemStatus)
	assert.Equal(t, "attack_simulation", status.ActiveWorkflow)
	assert.Equal(t, "3/3", status.WorkflowProgress)
}

func TestCheckStatusSingleAgent(t *testing.T) {
	c := newTestCoordinator(t)

	result, err := c.CheckStatus(AgentDetection)
	require.NoError(t, err)
	status, ok := result.(agent.Status)
	require.True(t, ok)
	assert.Equal(t, "Detection Agent", status.Name)

	_, err = c.CheckStatus("ghost")
	assert.ErrorIs(t, err, agent.ErrMissingDependency)
}

func TestSetScenarioResetsAgents(t *testing.T) {
	c := newTestCoordinator(t)

	def, _ := c.Agent(AgentDefense)
	_, err := def.Process(agent.Request{
		Op:     "system_update",
		Params: map[string]any{"measures": []string{"patch_management"}},
	})
	require.NoError(t, err)

	scenario := &config.Scenario{ID: "test-1", Type: "attack_simulation"}
	_, err = c.SetScenario(scenario)
	require.NoError(t, err)

	engine := def.(*defense.Engine)
	assert.Empty(t, engine.ImplementedMeasures(), "scenario change must reset engine state")
	assert.Equal(t, scenario, c.Scenario())

	require.NotEmpty(t, c.History())
	assert.Equal(t, "scenario_change", c.History()[len(c.History())-1].Type)
}

func TestSetScenarioNil(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.SetScenario(nil)
	assert.ErrorIs(t, err, agent.ErrNoInput)
}

func TestExecuteUnknownAgent(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.Execute("ghost", "anything", nil)
	assert.ErrorIs(t, err, agent.ErrMissingDependency)
}

func TestProcessInactiveCoordinator(t *testing.T) {
	c := NewCoordinator(utils.NewRandSource(1))

	_, err := c.Process(agent.Request{Op: string(OpCheckStatus)})
	assert.ErrorIs(t, err, agent.ErrInactiveAgent)
}

func TestWorkflowHistoryRecords(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.StartWorkflow("attack_simulation", map[string]any{"attack_type": "generic"})
	require.NoError(t, err)

	var types []string
	for _, record := range c.History() {
		types = append(types, record.Type)
	}
	assert.Contains(t, types, "workflow_start")
	assert.Contains(t, types, "workflow_complete")
}
