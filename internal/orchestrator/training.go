package orchestrator

import (
	"fmt"
	"strings"

	"github.com/cybershield-labs/range-core/internal/agent"
	"github.com/cybershield-labs/range-core/internal/defense"
	"github.com/cybershield-labs/range-core/internal/offense"
	"github.com/cybershield-labs/range-core/pkg/models"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

// TrainingEvaluation is the outcome of an evaluate_training call.
type TrainingEvaluation struct {
	DefenseScore          float64  `json:"defense_score"`
	DetectionRate         float64  `json:"detection_rate"`
	ResponseEffectiveness float64  `json:"response_effectiveness"`
	Strengths             []string `json:"strengths"`
	Weaknesses            []string `json:"weaknesses"`
	Improvements          []string `json:"improvements"`
}

// recommender is satisfied by the defense engine; used to pull posture
// improvements into the evaluation.
type recommender interface {
	Recommendations() []models.Recommendation
	ImplementedMeasures() map[string]float64
}

// EvaluateTraining scores a completed training exchange. When no results
// are passed explicitly, the attack and defense step results are pulled
// from the active training workflow.
func (c *Coordinator) EvaluateTraining(params map[string]any) (*TrainingEvaluation, error) {
	attackResult, _ := params["attack_result"].(*offense.SimulationOutcome)
	defenseResult, _ := params["defense_result"].(*defense.AttackResponse)

	if attackResult == nil {
		if result, ok := c.workflowResult(0); ok {
			attackResult, _ = result.(*offense.SimulationOutcome)
		}
	}
	if defenseResult == nil {
		if result, ok := c.workflowResult(2); ok {
			defenseResult, _ = result.(*defense.AttackResponse)
		}
	}
	if attackResult == nil {
		return nil, fmt.Errorf("%w: no attack result available for evaluation", agent.ErrNoInput)
	}

	detectionRate := pathDetectionRate(attackResult.Path)
	responseEffectiveness := c.responseEffectiveness(attackResult.Findings, defenseResult)

	score := 0.4*(1-attackResult.SuccessProbability) + 0.3*detectionRate + 0.3*responseEffectiveness
	score = utils.ClampFloat64(score, 0, 1)

	posture := c.defensePosture()
	evaluation := &TrainingEvaluation{
		DefenseScore:          utils.Round(score, 3),
		DetectionRate:         utils.Round(detectionRate, 3),
		ResponseEffectiveness: utils.Round(responseEffectiveness, 3),
		Strengths:             c.trainingStrengths(detectionRate, responseEffectiveness, score, posture),
		Weaknesses:            trainingWeaknesses(detectionRate, responseEffectiveness, attackResult, posture),
		Improvements:          c.trainingImprovements(attackResult),
	}

	c.record("training_evaluation", map[string]any{
		"defense_score":  evaluation.DefenseScore,
		"detection_rate": evaluation.DetectionRate,
	})
	c.log.Info("training evaluated",
		"defense_score", evaluation.DefenseScore,
		"detection_rate", evaluation.DetectionRate,
		"response_effectiveness", evaluation.ResponseEffectiveness)
	return evaluation, nil
}

func pathDetectionRate(path []models.AttackStep) float64 {
	if len(path) == 0 {
		return 0
	}
	detected := 0
	for _, step := range path {
		if step.Detected {
			detected++
		}
	}
	return float64(detected) / float64(len(path))
}

// responseEffectiveness is the fraction of critical findings the defense
// response addresses, matched on countermeasure keywords and the deployed
// posture. No findings means a fully effective response.
func (c *Coordinator) responseEffectiveness(findings []models.Finding, defenseResult *defense.AttackResponse) float64 {
	if len(findings) == 0 {
		return 1.0
	}

	var actions []string
	if defenseResult != nil {
		for _, cm := range defenseResult.Countermeasures {
			actions = append(actions, strings.ToLower(cm.Action))
		}
	}
	hasAction := func(keywords ...string) bool {
		for _, action := range actions {
			match := true
			for _, kw := range keywords {
				if !strings.Contains(action, kw) {
					match = false
					break
				}
			}
			if match {
				return true
			}
		}
		return false
	}

	posture := c.defensePosture()
	addressed := 0
	for _, finding := range findings {
		switch finding.Type {
		case "detection_gap":
			if hasAction("monitoring") {
				addressed++
			}
		case "privilege_escalation":
			if hasAction("access control") || postureHas(posture, "access_control") {
				addressed++
			}
		case "missing_defenses":
			if missingDefensesCovered(finding.Description, posture) {
				addressed++
			}
		case "data_leak":
			if hasAction("data", "prevention") || postureHas(posture, "data_encryption") {
				addressed++
			}
		}
	}
	return float64(addressed) / float64(len(findings))
}

// missingDefensesCovered reports whether every measure named in a
// missing_defenses finding has since been deployed.
func missingDefensesCovered(description string, posture map[string]float64) bool {
	named := false
	for _, measure := range []string{"patch_management", "access_control", "endpoint_protection"} {
		if !strings.Contains(description, measure) {
			continue
		}
		named = true
		if !postureHas(posture, measure) {
			return false
		}
	}
	return named
}

func postureHas(posture map[string]float64, measure string) bool {
	_, ok := posture[measure]
	return ok
}

// defensePosture reads the deployed measures off the registered defense
// engine, empty when none is registered.
func (c *Coordinator) defensePosture() map[string]float64 {
	a, ok := c.agents[AgentDefense]
	if !ok {
		return nil
	}
	r, ok := a.(recommender)
	if !ok {
		return nil
	}
	return r.ImplementedMeasures()
}

func (c *Coordinator) trainingStrengths(detectionRate, responseEffectiveness, score float64, posture map[string]float64) []string {
	var strengths []string
	if detectionRate > 0.7 {
		strengths = append(strengths, "Strong detection coverage across attack phases")
	}
	if responseEffectiveness > 0.8 {
		strengths = append(strengths, "Effective response to critical findings")
	}
	if score > 0.75 {
		strengths = append(strengths, "Overall defensive posture held against the attack")
	}
	if postureHas(posture, "patch_management") && postureHas(posture, "data_encryption") {
		strengths = append(strengths, "Core hardening measures deployed")
	}
	if postureHas(posture, "ids_configuration") && detectionRate > 0.6 {
		strengths = append(strengths, "Intrusion detection contributing to visibility")
	}
	return strengths
}

func trainingWeaknesses(detectionRate, responseEffectiveness float64, attackResult *offense.SimulationOutcome, posture map[string]float64) []string {
	var weaknesses []string
	if detectionRate < 0.4 {
		weaknesses = append(weaknesses, "Most attack phases went undetected")
	}
	if responseEffectiveness < 0.5 {
		weaknesses = append(weaknesses, "Critical findings left unaddressed")
	}

	for _, step := range attackResult.Path {
		if (step.Phase == "impact" || step.Phase == "exfiltration") && !step.Detected {
			weaknesses = append(weaknesses, "High-impact phases reached without detection")
			break
		}
	}

	var missing []string
	for _, measure := range []string{"patch_management", "data_encryption"} {
		if !postureHas(posture, measure) {
			missing = append(missing, measure)
		}
	}
	if len(missing) > 0 {
		weaknesses = append(weaknesses, "Critical measures not deployed: "+strings.Join(missing, ", "))
	}
	return weaknesses
}

func (c *Coordinator) trainingImprovements(attackResult *offense.SimulationOutcome) []string {
	var improvements []string

	if a, ok := c.agents[AgentDefense]; ok {
		if r, ok := a.(recommender); ok {
			count := 0
			for _, rec := range r.Recommendations() {
				if rec.Priority != models.SeverityHigh {
					continue
				}
				improvements = append(improvements, rec.Action)
				count++
				if count == 3 {
					break
				}
			}
		}
	}

	if attackResult.Outcome == "successful" {
		improvements = append(improvements,
			fmt.Sprintf("Improve layered defenses against %s attacks", attackResult.AttackType))
	}
	if attackResult.EvasionRate > 0.7 {
		improvements = append(improvements, "Enhance monitoring to counter evasion techniques")
	}
	return improvements
}
