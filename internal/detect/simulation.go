package detect

import (
	"fmt"
	"sort"

	"github.com/cybershield-labs/range-core/internal/agent"
	"github.com/cybershield-labs/range-core/pkg/models"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

// Per-technique base detection probabilities.
var techniqueDetectionRates = map[string]float64{
	"reconnaissance":         0.3,
	"vulnerability_scanning": 0.5,
	"exploitation":           0.7,
	"privilege_escalation":   0.6,
	"lateral_movement":       0.65,
	"data_exfiltration":      0.8,
	"persistence":            0.4,
	"evasion":                0.3,
}

// Per-phase detection probability modifiers.
var phaseDetectionModifiers = map[string]float64{
	"reconnaissance":       0.9,
	"initial_access":       1.1,
	"execution":            1.2,
	"persistence":          0.8,
	"privilege_escalation": 1.1,
	"defense_evasion":      0.7,
	"credential_access":    1.0,
	"discovery":            0.9,
	"lateral_movement":     1.1,
	"collection":           1.0,
	"exfiltration":         1.2,
	"impact":               1.3,
}

// SimulationResult is the outcome of a detect_simulation call.
type SimulationResult struct {
	Summary         DetectionSummary            `json:"detection_summary"`
	DetectedSteps   []DetectedStep              `json:"detected_steps"`
	MissedSteps     []MissedStep                `json:"missed_steps"`
	Recommendations []ImprovementRecommendation `json:"recommendations"`
	Path            []models.AttackStep         `json:"attack_path"`
}

// DetectionSummary aggregates per-step detection outcomes. EarlyDetection
// means one of the first two steps was caught; CriticalDetectionRate covers
// only execution, impact and exfiltration phase steps.
type DetectionSummary struct {
	TotalSteps            int     `json:"total_steps"`
	DetectedCount         int     `json:"detected_count"`
	DetectionRate         float64 `json:"detection_rate"`
	EarlyDetection        bool    `json:"early_detection"`
	CriticalDetectionRate float64 `json:"critical_detection_rate"`
}

// Phases where a miss lets the attack reach its objective.
var criticalDetectionPhases = map[string]bool{
	"execution":    true,
	"impact":       true,
	"exfiltration": true,
}

// DetectedStep records a successfully detected attack step.
type DetectedStep struct {
	Phase         string  `json:"phase"`
	Technique     string  `json:"technique"`
	DetectionTime string  `json:"detection_time"`
	Confidence    float64 `json:"confidence"`
}

// MissedStep records an undetected attack step with a likely reason.
type MissedStep struct {
	Phase        string `json:"phase"`
	Technique    string `json:"technique"`
	MissedReason string `json:"missed_reason"`
}

// ImprovementRecommendation suggests a detection coverage improvement.
type ImprovementRecommendation struct {
	Priority    string `json:"priority"`
	Improvement string `json:"improvement"`
	Description string `json:"description"`
}

// DetectSimulation runs the detection model against a simulated attack
// path. Steps already flagged detected keep the flag; the rest are decided
// by a probability weighted on technique and phase. The returned path
// carries the updated flags.
func (e *Engine) DetectSimulation(path []models.AttackStep) (*SimulationResult, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: no attack path provided", agent.ErrNoInput)
	}

	annotated := make([]models.AttackStep, len(path))
	copy(annotated, path)

	var detected []DetectedStep
	var missed []MissedStep

	for i := range annotated {
		step := &annotated[i]
		prob := stepDetectionProbability(*step)

		if !step.Detected {
			step.Detected = e.rng.Float64() < prob
		}

		if step.Detected {
			detectionTime := "delayed"
			if prob > 0.7 {
				detectionTime = "real-time"
			}
			detected = append(detected, DetectedStep{
				Phase:         step.Phase,
				Technique:     step.Technique,
				DetectionTime: detectionTime,
				Confidence:    prob * e.rng.UniformFloat64(0.8, 1.0),
			})
		} else {
			missed = append(missed, MissedStep{
				Phase:        step.Phase,
				Technique:    step.Technique,
				MissedReason: missedReason(step.Technique),
			})
		}
	}

	rate := float64(len(detected)) / float64(len(annotated))

	early := false
	for i := 0; i < len(annotated) && i < 2; i++ {
		if annotated[i].Detected {
			early = true
		}
	}

	var criticalSteps, criticalDetected int
	for _, step := range annotated {
		if !criticalDetectionPhases[step.Phase] {
			continue
		}
		criticalSteps++
		if step.Detected {
			criticalDetected++
		}
	}
	criticalRate := 0.0
	if criticalSteps > 0 {
		criticalRate = float64(criticalDetected) / float64(criticalSteps)
	}

	e.log.Info("simulation detection complete",
		"total_steps", len(annotated), "detected", len(detected), "detection_rate", utils.Round(rate, 2))

	return &SimulationResult{
		Summary: DetectionSummary{
			TotalSteps:            len(annotated),
			DetectedCount:         len(detected),
			DetectionRate:         rate,
			EarlyDetection:        early,
			CriticalDetectionRate: criticalRate,
		},
		DetectedSteps:   detected,
		MissedSteps:     missed,
		Recommendations: improvementRecommendations(missed),
		Path:            annotated,
	}, nil
}

func stepDetectionProbability(step models.AttackStep) float64 {
	base, ok := techniqueDetectionRates[step.Technique]
	if !ok {
		base = 0.5
	}
	modifier, ok := phaseDetectionModifiers[step.Phase]
	if !ok {
		modifier = 1.0
	}
	prob := base * modifier
	if prob > 0.95 {
		prob = 0.95
	}
	return prob
}

func missedReason(technique string) string {
	reasons := map[string]string{
		"reconnaissance":         "Low-and-slow scanning below alert thresholds",
		"vulnerability_scanning": "Scan traffic blended with legitimate probes",
		"exploitation":           "No signature for the exploited vulnerability",
		"privilege_escalation":   "Local activity outside network visibility",
		"lateral_movement":       "Legitimate credentials used for movement",
		"data_exfiltration":      "Transfer split below volume thresholds",
		"persistence":            "Persistence mechanism mimics legitimate software",
		"evasion":                "Deliberate anti-detection techniques in use",
	}
	if reason, ok := reasons[technique]; ok {
		return reason
	}
	return "Activity fell below detection thresholds"
}

// improvementRecommendations maps missed techniques to coverage
// improvements, always producing at least three.
func improvementRecommendations(missed []MissedStep) []ImprovementRecommendation {
	improvements := map[string]string{
		"reconnaissance":         "Deploy network scan detection with lower thresholds",
		"vulnerability_scanning": "Correlate scan patterns across time windows",
		"exploitation":           "Expand exploit signature coverage and enable heuristics",
		"privilege_escalation":   "Add host-based privilege change monitoring",
		"lateral_movement":       "Monitor internal east-west traffic for credential reuse",
		"data_exfiltration":      "Enable data loss prevention with volume baselining",
		"persistence":            "Audit autostart locations and scheduled tasks",
		"evasion":                "Deploy behavioral analytics resistant to signature evasion",
	}

	counts := map[string]int{}
	for _, m := range missed {
		counts[m.Technique]++
	}
	techniques := make([]string, 0, len(counts))
	for technique := range counts {
		techniques = append(techniques, technique)
	}
	sort.Strings(techniques)

	var recs []ImprovementRecommendation
	for _, technique := range techniques {
		count := counts[technique]
		improvement, ok := improvements[technique]
		if !ok {
			improvement = "Review detection coverage for " + technique
		}
		priority := models.SeverityLow
		if count > 2 {
			priority = models.SeverityHigh
		} else if count > 1 {
			priority = models.SeverityMedium
		}
		recs = append(recs, ImprovementRecommendation{
			Priority:    priority,
			Improvement: improvement,
			Description: fmt.Sprintf("Missed %d %s step(s) in simulation", count, technique),
		})
	}

	general := []ImprovementRecommendation{
		{Priority: models.SeverityMedium, Improvement: "baseline_tuning",
			Description: "Tune anomaly baselines against recent traffic profiles"},
		{Priority: models.SeverityMedium, Improvement: "endpoint_visibility",
			Description: "Extend telemetry collection to endpoint activity"},
		{Priority: models.SeverityLow, Improvement: "threat_intelligence",
			Description: "Integrate external threat intelligence feeds"},
	}
	for _, g := range general {
		if len(recs) >= 3 {
			break
		}
		recs = append(recs, g)
	}

	return recs
}
