package offense

import (
	"strings"

	"github.com/cybershield-labs/range-core/pkg/models"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

// Defense measures mapped to the attack techniques they counter. A step's
// success probability is reduced by the mean strength of the applicable
// measures.
var defenseCounters = map[string][]string{
	"firewall_rules":       {"reconnaissance", "exploitation", "lateral_movement"},
	"ids_configuration":    {"reconnaissance", "vulnerability_scanning", "exploitation", "lateral_movement"},
	"patch_management":     {"exploitation"},
	"access_control":       {"privilege_escalation", "lateral_movement"},
	"data_encryption":      {"data_exfiltration"},
	"network_segmentation": {"lateral_movement", "data_exfiltration"},
	"endpoint_protection":  {"exploitation", "persistence", "evasion"},
	"backup_systems":       {"exploitation"},
}

// pathTemplate is one step blueprint: phase, technique, purpose, and the
// probability defenders notice it.
type pathTemplate struct {
	phase         string
	technique     string
	purpose       string
	detectionProb float64
}

// SimulationOutcome is the outcome of an attack_simulation call.
type SimulationOutcome struct {
	AttackType         string              `json:"attack_type"`
	Path               []models.AttackStep `json:"attack_path"`
	SuccessProbability float64             `json:"success_probability"`
	EvasionRate        float64             `json:"evasion_rate"`
	Outcome            string              `json:"outcome"`
	Findings           []models.Finding    `json:"critical_findings"`
}

// AttackSimulation builds an attack path for the given attack type, rolls
// per-step detection, and scores it against the supplied defense posture.
func (e *Engine) AttackSimulation(attackType string, defenses map[string]float64) (*SimulationOutcome, error) {
	templates := attackPathTemplates(attackType)

	path := make([]models.AttackStep, 0, len(templates))
	for _, tpl := range templates {
		path = append(path, models.AttackStep{
			Phase:              tpl.phase,
			Technique:          tpl.technique,
			Purpose:            tpl.purpose,
			Detected:           e.rng.Float64() < tpl.detectionProb,
			SuccessProbability: stepSuccessProbability(tpl.technique, defenses),
		})
	}

	overall := 1.0
	for _, step := range path {
		overall *= step.SuccessProbability
	}

	var evasionScores []float64
	for _, step := range path {
		if step.Purpose == "evasion" {
			evasionScores = append(evasionScores, step.SuccessProbability)
		}
	}
	evasionRate := 0.0
	if len(evasionScores) > 0 {
		evasionRate = utils.Mean(evasionScores)
	}

	outcome := &SimulationOutcome{
		AttackType:         attackType,
		Path:               path,
		SuccessProbability: overall,
		EvasionRate:        evasionRate,
		Outcome:            outcomeLabel(overall),
		Findings:           criticalFindings(path, defenses),
	}
	e.lastSimulation = outcome
	e.log.Info("attack simulation complete",
		"attack_type", attackType,
		"steps", len(path),
		"success_probability", utils.Round(overall, 3),
		"outcome", outcome.Outcome)
	return outcome, nil
}

// attackPathTemplates returns the step blueprints for an attack type. All
// paths share a reconnaissance prefix.
func attackPathTemplates(attackType string) []pathTemplate {
	common := []pathTemplate{
		{"reconnaissance", "reconnaissance", "target_identification", 0.3},
		{"reconnaissance", "vulnerability_scanning", "weakness_discovery", 0.5},
	}

	switch attackType {
	case "ransomware":
		return append(common,
			pathTemplate{"initial_access", "exploitation", "foothold", 0.6},
			pathTemplate{"execution", "privilege_escalation", "elevated_access", 0.6},
			pathTemplate{"persistence", "persistence", "maintain_access", 0.5},
			pathTemplate{"lateral_movement", "lateral_movement", "spread", 0.7},
			pathTemplate{"impact", "exploitation", "data_encryption", 0.8},
		)
	case "data_exfiltration":
		return append(common,
			pathTemplate{"initial_access", "exploitation", "foothold", 0.6},
			pathTemplate{"execution", "privilege_escalation", "elevated_access", 0.6},
			pathTemplate{"discovery", "lateral_movement", "data_discovery", 0.5},
			pathTemplate{"collection", "exploitation", "data_staging", 0.6},
			pathTemplate{"exfiltration", "data_exfiltration", "data_theft", 0.7},
			pathTemplate{"covering_tracks", "evasion", "evasion", 0.5},
		)
	default:
		return append(common,
			pathTemplate{"initial_access", "exploitation", "foothold", 0.6},
			pathTemplate{"execution", "exploitation", "code_execution", 0.7},
			pathTemplate{"persistence", "persistence", "maintain_access", 0.5},
		)
	}
}

// stepSuccessProbability scores one technique against the defense posture.
// Result is clamped to [0.1, 0.95]: never impossible, never certain.
func stepSuccessProbability(technique string, defenses map[string]float64) float64 {
	complexity, ok := techniqueComplexity[technique]
	if !ok {
		complexity = 0.5
	}

	var applicable []float64
	for measure, strength := range defenses {
		for _, countered := range defenseCounters[measure] {
			if countered == technique {
				applicable = append(applicable, strength)
				break
			}
		}
	}
	defenseFactor := 0.0
	if len(applicable) > 0 {
		defenseFactor = utils.Mean(applicable)
	}

	prob := (1 - complexity) * (1 - defenseFactor*0.8)
	return utils.ClampFloat64(prob, 0.1, 0.95)
}

func outcomeLabel(successProbability float64) string {
	switch {
	case successProbability > 0.5:
		return "successful"
	case successProbability > 0.2:
		return "partially_successful"
	default:
		return "failed"
	}
}

// criticalFindings derives defender-facing findings from the simulated
// path and posture.
func criticalFindings(path []models.AttackStep, defenses map[string]float64) []models.Finding {
	var findings []models.Finding

	criticalPhases := map[string]bool{"execution": true, "impact": true, "exfiltration": true}
	var undetectedPhases []string
	for _, step := range path {
		if criticalPhases[step.Phase] && !step.Detected {
			undetectedPhases = append(undetectedPhases, step.Phase)
		}
	}
	if len(undetectedPhases) > 0 {
		findings = append(findings, models.Finding{
			Type:           "detection_gap",
			Severity:       models.SeverityCritical,
			Description:    "Attack phases went undetected: " + strings.Join(undetectedPhases, ", "),
			Recommendation: "Improve monitoring coverage for critical attack phases",
		})
	}

	for _, step := range path {
		if step.Technique == "privilege_escalation" && step.SuccessProbability > 0.6 {
			findings = append(findings, models.Finding{
				Type:           "privilege_escalation",
				Severity:       models.SeverityHigh,
				Description:    "Privilege escalation likely to succeed against current controls",
				Recommendation: "Strengthen access control and privilege management",
			})
			break
		}
	}

	var missing []string
	for _, essential := range []string{"patch_management", "access_control", "endpoint_protection"} {
		if _, ok := defenses[essential]; !ok {
			missing = append(missing, essential)
		}
	}
	if len(missing) > 0 {
		findings = append(findings, models.Finding{
			Type:           "missing_defenses",
			Severity:       models.SeverityHigh,
			Description:    "Essential defenses not implemented: " + strings.Join(missing, ", "),
			Recommendation: "Implement " + strings.Join(missing, ", "),
		})
	}

	for _, step := range path {
		if step.Purpose == "data_theft" && step.SuccessProbability > 0.5 {
			findings = append(findings, models.Finding{
				Type:           "data_leak",
				Severity:       models.SeverityCritical,
				Description:    "Data theft step likely to succeed against current controls",
				Recommendation: "Deploy data loss prevention and egress monitoring",
			})
			break
		}
	}

	return findings
}
