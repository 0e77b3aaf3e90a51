// Package orchestrator coordinates the engines: agent registry, workflow
// sequencing, readiness reporting, and training evaluation.
package orchestrator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cybershield-labs/range-core/internal/agent"
	"github.com/cybershield-labs/range-core/pkg/config"
	"github.com/cybershield-labs/range-core/pkg/logger"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

// Op is a coordinator operation.
type Op string

const (
	OpStartWorkflow    Op = "start_workflow"
	OpCheckStatus      Op = "check_status"
	OpSetScenario      Op = "set_scenario"
	OpEvaluateTraining Op = "evaluate_training"
)

// Agent IDs engines register under. Workflow steps reference these.
const (
	AgentDetection   = "detection"
	AgentDefense     = "defense"
	AgentOffense     = "offense"
	AgentCoordinator = "coordinator"
)

// essentialAgents carry the bulk of the readiness score.
var essentialAgents = []string{AgentDetection, AgentDefense, AgentOffense}

// StepExecutor routes one engine call. The coordinator implements it, and
// the simulation driver issues all engine calls through it so workflow
// steps and driver steps share a single dispatch path.
type StepExecutor interface {
	Execute(agentID, op string, params map[string]any) (any, error)
}

// HistoryRecord is one append-only coordination event.
type HistoryRecord struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// SystemStatus is the system-level check_status block.
type SystemStatus struct {
	ActiveAgents     int     `json:"active_agents"`
	TotalAgents      int     `json:"total_agents"`
	SystemReadiness  float64 `json:"system_readiness"`
	ActiveWorkflow   string  `json:"active_workflow,omitempty"`
	WorkflowProgress string  `json:"workflow_progress"`
}

// Coordinator is the orchestrating agent. It owns the registry and the
// single active workflow.
type Coordinator struct {
	rng    *utils.RandSource
	log    *slog.Logger
	active bool

	agents         map[string]agent.Agent
	agentOrder     []string
	activeWorkflow *WorkflowState
	history        []HistoryRecord
	scenario       *config.Scenario
	workflowSeq    int
}

// NewCoordinator creates an empty coordinator. Engines must be registered
// before workflows can run.
func NewCoordinator(rng *utils.RandSource) *Coordinator {
	return &Coordinator{
		rng:    rng,
		log:    logger.With("agent", "coordinator"),
		agents: map[string]agent.Agent{},
	}
}

func (c *Coordinator) Kind() agent.Kind { return agent.KindOrchestrator }
func (c *Coordinator) Activate()        { c.active = true; c.log.Info("coordinator activated") }
func (c *Coordinator) Deactivate()      { c.active = false; c.log.Info("coordinator deactivated") }
func (c *Coordinator) Active() bool     { return c.active }

// Register adds an engine under the given ID, replacing any previous
// registration.
func (c *Coordinator) Register(id string, a agent.Agent) {
	if _, exists := c.agents[id]; !exists {
		c.agentOrder = append(c.agentOrder, id)
	}
	c.agents[id] = a
	c.log.Info("agent registered", "agent_id", id, "kind", a.Kind())
}

// Agent returns a registered engine by ID.
func (c *Coordinator) Agent(id string) (agent.Agent, bool) {
	a, ok := c.agents[id]
	return a, ok
}

// Reset clears coordination state and resets every registered engine.
func (c *Coordinator) Reset() {
	for _, id := range c.agentOrder {
		c.agents[id].Reset()
	}
	c.activeWorkflow = nil
	c.history = nil
	c.scenario = nil
	c.log.Debug("coordinator state reset")
}

// History returns the append-only coordination record.
func (c *Coordinator) History() []HistoryRecord {
	return c.history
}

func (c *Coordinator) record(recordType string, details map[string]any) {
	c.history = append(c.history, HistoryRecord{
		Type:      recordType,
		Timestamp: time.Now(),
		Details:   details,
	})
}

// Status reports the externally visible coordinator state.
func (c *Coordinator) Status() agent.Status {
	workflow := ""
	if c.activeWorkflow != nil {
		workflow = c.activeWorkflow.Type
	}
	return agent.Status{
		Name:        "Coordinator Agent",
		Description: "Orchestrates engine workflows and training evaluation",
		Capabilities: []string{
			"workflow_orchestration",
			"agent_management",
			"training_evaluation",
			"scenario_management",
		},
		Active: c.active,
		State: map[string]any{
			"registered_agents": len(c.agents),
			"active_workflow":   workflow,
			"history_size":      len(c.history),
		},
	}
}

// Process dispatches an operation request.
func (c *Coordinator) Process(req agent.Request) (any, error) {
	if !c.active {
		return nil, fmt.Errorf("%w: coordinator", agent.ErrInactiveAgent)
	}

	switch Op(req.Op) {
	case OpStartWorkflow:
		workflowType := agent.ParamString(req.Params, "workflow_type", "")
		return c.StartWorkflow(workflowType, req.Params)
	case OpCheckStatus:
		agentID := agent.ParamString(req.Params, "agent_id", "")
		return c.CheckStatus(agentID)
	case OpSetScenario:
		scenario, _ := req.Params["scenario"].(*config.Scenario)
		return c.SetScenario(scenario)
	case OpEvaluateTraining:
		return c.EvaluateTraining(req.Params)
	default:
		return nil, agent.UnknownOp(req.Op)
	}
}

// Execute routes one call to a registered engine. Calls addressed to the
// coordinator itself dispatch through its own operations.
func (c *Coordinator) Execute(agentID, op string, params map[string]any) (any, error) {
	if agentID == AgentCoordinator {
		return c.Process(agent.Request{Op: op, Params: params})
	}
	target, ok := c.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrMissingDependency, agentID)
	}
	return target.Process(agent.Request{Op: op, Params: params})
}

// CheckStatus returns one agent's status, or the system block when no
// agent ID is given.
func (c *Coordinator) CheckStatus(agentID string) (any, error) {
	if agentID != "" {
		target, ok := c.agents[agentID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", agent.ErrMissingDependency, agentID)
		}
		return target.Status(), nil
	}

	activeCount := 0
	for _, id := range c.agentOrder {
		if c.agents[id].Active() {
			activeCount++
		}
	}

	status := SystemStatus{
		ActiveAgents:     activeCount,
		TotalAgents:      len(c.agents),
		SystemReadiness:  c.systemReadiness(),
		WorkflowProgress: "N/A",
	}
	if c.activeWorkflow != nil {
		status.ActiveWorkflow = c.activeWorkflow.Type
		status.WorkflowProgress = fmt.Sprintf("%d/%d",
			len(c.activeWorkflow.Steps), len(workflowCatalog[c.activeWorkflow.Type]))
	}
	return status, nil
}

// systemReadiness weighs essential engine availability at 0.7 and the
// remaining registrations at 0.3.
func (c *Coordinator) systemReadiness() float64 {
	if len(c.agents) == 0 {
		return 0.0
	}

	essentialActive := 0
	for _, id := range essentialAgents {
		if a, ok := c.agents[id]; ok && a.Active() {
			essentialActive++
		}
	}
	readiness := 0.7 * float64(essentialActive) / float64(len(essentialAgents))

	otherTotal, otherActive := 0, 0
	for _, id := range c.agentOrder {
		if isEssential(id) {
			continue
		}
		otherTotal++
		if c.agents[id].Active() {
			otherActive++
		}
	}
	if otherTotal > 0 {
		readiness += 0.3 * float64(otherActive) / float64(otherTotal)
	}
	return readiness
}

func isEssential(id string) bool {
	for _, essential := range essentialAgents {
		if id == essential {
			return true
		}
	}
	return false
}

// SetScenario installs a scenario and resets every registered engine to a
// clean state for it.
func (c *Coordinator) SetScenario(scenario *config.Scenario) (map[string]any, error) {
	if scenario == nil {
		return nil, fmt.Errorf("%w: no scenario provided", agent.ErrNoInput)
	}

	for _, id := range c.agentOrder {
		c.agents[id].Reset()
	}
	c.scenario = scenario
	c.activeWorkflow = nil

	c.record("scenario_change", map[string]any{
		"scenario_id":   scenario.ID,
		"scenario_type": scenario.Type,
	})
	c.log.Info("scenario set", "scenario_id", scenario.ID, "type", scenario.Type)

	return map[string]any{
		"scenario_id":  scenario.ID,
		"agents_reset": len(c.agentOrder),
	}, nil
}

// Scenario returns the installed scenario, if any.
func (c *Coordinator) Scenario() *config.Scenario {
	return c.scenario
}
