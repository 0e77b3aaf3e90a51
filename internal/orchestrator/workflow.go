package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/cybershield-labs/range-core/internal/agent"
	"github.com/cybershield-labs/range-core/internal/defense"
	"github.com/cybershield-labs/range-core/internal/detect"
	"github.com/cybershield-labs/range-core/internal/offense"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

// Workflow lifecycle states.
const (
	WorkflowInProgress = "in_progress"
	WorkflowCompleted  = "completed"
)

type workflowStep struct {
	agentID string
	op      string
}

// workflowCatalog maps workflow type to its ordered step plan.
var workflowCatalog = map[string][]workflowStep{
	"threat_detection": {
		{AgentDetection, string(detect.OpAnalyzeTraffic)},
		{AgentDefense, string(defense.OpAttackDetected)},
	},
	"vulnerability_assessment": {
		{AgentOffense, string(offense.OpVulnerabilityAssessment)},
		{AgentDefense, string(defense.OpVulnerabilityScan)},
	},
	"attack_simulation": {
		{AgentOffense, string(offense.OpAttackSimulation)},
		{AgentDetection, string(detect.OpDetectSimulation)},
		{AgentDefense, string(defense.OpAttackDetected)},
	},
	"training_session": {
		{AgentOffense, string(offense.OpAttackSimulation)},
		{AgentDetection, string(detect.OpDetectSimulation)},
		{AgentDefense, string(defense.OpAttackDetected)},
		{AgentCoordinator, string(OpEvaluateTraining)},
	},
}

// StepResult is the recorded outcome of one workflow step.
type StepResult struct {
	Agent     string `json:"agent"`
	Operation string `json:"operation"`
	Status    string `json:"status"`
	Results   any    `json:"results,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WorkflowState is one workflow execution. Steps are keyed step_0..step_N
// in plan order.
type WorkflowState struct {
	ID        string                `json:"id"`
	Type      string                `json:"type"`
	Status    string                `json:"status"`
	StartedAt time.Time             `json:"started_at"`
	Steps     map[string]StepResult `json:"steps"`
}

// StartWorkflow validates the plan's agent requirements and runs the steps
// in order, chaining each step's output into the next step's input. A step
// failure halts the run, leaving the workflow in progress with the results
// gathered so far.
func (c *Coordinator) StartWorkflow(workflowType string, params map[string]any) (*WorkflowState, error) {
	plan, ok := workflowCatalog[workflowType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown workflow type %q", agent.ErrUnknownOperation, workflowType)
	}

	var missing []string
	seen := map[string]bool{}
	for _, step := range plan {
		if step.agentID == AgentCoordinator || seen[step.agentID] {
			continue
		}
		seen[step.agentID] = true
		if _, registered := c.agents[step.agentID]; !registered {
			missing = append(missing, step.agentID)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: workflow %s requires %s",
			agent.ErrMissingDependency, workflowType, strings.Join(missing, ", "))
	}

	c.workflowSeq++
	state := &WorkflowState{
		ID:        utils.GenerateWorkflowID(workflowType, c.workflowSeq),
		Type:      workflowType,
		Status:    WorkflowInProgress,
		StartedAt: time.Now(),
		Steps:     map[string]StepResult{},
	}
	c.activeWorkflow = state
	c.record("workflow_start", map[string]any{"workflow_id": state.ID, "workflow_type": workflowType})
	c.log.Info("workflow started", "workflow_id", state.ID, "type", workflowType)

	var previous any
	for i, step := range plan {
		stepParams := c.stepParams(step, params, previous)
		result, err := c.Execute(step.agentID, step.op, stepParams)
		key := fmt.Sprintf("step_%d", i)

		if err != nil {
			state.Steps[key] = StepResult{
				Agent:     step.agentID,
				Operation: step.op,
				Status:    "error",
				Error:     err.Error(),
			}
			c.log.Error("workflow step failed",
				"workflow_id", state.ID, "step", key, "agent", step.agentID, "error", err)
			return state, fmt.Errorf("workflow %s halted at %s: %w", workflowType, key, err)
		}

		state.Steps[key] = StepResult{
			Agent:     step.agentID,
			Operation: step.op,
			Status:    "success",
			Results:   result,
		}
		previous = result
	}

	state.Status = WorkflowCompleted
	c.record("workflow_complete", map[string]any{"workflow_id": state.ID, "steps": len(state.Steps)})
	c.log.Info("workflow completed", "workflow_id", state.ID, "steps", len(state.Steps))
	return state, nil
}

// stepParams derives one step's input from the caller-supplied parameters
// and the previous step's typed result.
func (c *Coordinator) stepParams(step workflowStep, initial map[string]any, previous any) map[string]any {
	params := map[string]any{}
	for k, v := range initial {
		params[k] = v
	}

	switch {
	case step.agentID == AgentDetection && step.op == string(detect.OpDetectSimulation):
		if sim, ok := previous.(*offense.SimulationOutcome); ok {
			params["attack_path"] = sim.Path
		}
	case step.agentID == AgentDefense && step.op == string(defense.OpVulnerabilityScan):
		if assessment, ok := previous.(*offense.AssessmentResult); ok {
			params["vulnerabilities"] = assessment.Vulnerabilities
		}
	case step.agentID == AgentDefense && step.op == string(defense.OpAttackDetected):
		switch prev := previous.(type) {
		case *detect.AnalysisResult:
			params["threats"] = prev.DetectedThreats
		case *detect.SimulationResult:
			// downstream of detect_simulation the attack type drives response
			if _, ok := params["attack_type"]; !ok {
				if c.activeWorkflow != nil {
					if offResult, found := c.workflowResult(0); found {
						if sim, ok := offResult.(*offense.SimulationOutcome); ok {
							params["attack_type"] = sim.AttackType
						}
					}
				}
			}
		}
	}
	return params
}

// workflowResult fetches a typed step result from the active workflow.
func (c *Coordinator) workflowResult(index int) (any, bool) {
	if c.activeWorkflow == nil {
		return nil, false
	}
	step, ok := c.activeWorkflow.Steps[fmt.Sprintf("step_%d", index)]
	if !ok || step.Status != "success" {
		return nil, false
	}
	return step.Results, true
}
