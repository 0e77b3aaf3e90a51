// Package offense implements the adversary side of the simulator:
// vulnerability assessment, multi-phase attack path simulation against a
// defense posture, and authorized penetration testing.
package offense

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/cybershield-labs/range-core/internal/agent"
	"github.com/cybershield-labs/range-core/pkg/config"
	"github.com/cybershield-labs/range-core/pkg/logger"
	"github.com/cybershield-labs/range-core/pkg/models"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

// Op is an offense engine operation.
type Op string

const (
	OpVulnerabilityAssessment Op = "vulnerability_assessment"
	OpAttackSimulation        Op = "attack_simulation"
	OpPenetrationTest         Op = "penetration_test"
)

// Execution complexity per attack technique. Higher complexity lowers the
// unopposed success probability.
var techniqueComplexity = map[string]float64{
	"reconnaissance":         0.3,
	"vulnerability_scanning": 0.4,
	"exploitation":           0.7,
	"privilege_escalation":   0.8,
	"lateral_movement":       0.6,
	"data_exfiltration":      0.5,
	"persistence":            0.7,
	"evasion":                0.9,
}

// Base exploitability per vulnerability type, also the weight used when
// drawing synthetic vulnerabilities.
var vulnerabilityExploitability = map[string]float64{
	"unpatched_software":    0.8,
	"weak_credentials":      0.6,
	"misconfiguration":      0.7,
	"sql_injection":         0.5,
	"xss":                   0.5,
	"csrf":                  0.4,
	"open_ports":            0.6,
	"default_credentials":   0.8,
	"outdated_cryptography": 0.7,
}

var depthFactors = map[string]float64{
	"low":    0.3,
	"medium": 0.6,
	"high":   0.9,
}

// AssessmentResult is the outcome of a vulnerability_assessment call.
type AssessmentResult struct {
	TargetsAssessed int                    `json:"targets_assessed"`
	ScanDepth       string                 `json:"scan_depth"`
	Vulnerabilities []models.Vulnerability `json:"vulnerabilities"`
	SeverityCounts  map[string]int         `json:"severity_counts"`
}

// Engine is the offense agent.
type Engine struct {
	rng    *utils.RandSource
	log    *slog.Logger
	active bool

	lastAssessment *AssessmentResult
	lastSimulation *SimulationOutcome
}

// NewEngine creates an offense engine drawing randomness from rng.
func NewEngine(rng *utils.RandSource) *Engine {
	return &Engine{rng: rng, log: logger.With("agent", "offense")}
}

func (e *Engine) Kind() agent.Kind { return agent.KindOffense }
func (e *Engine) Activate()        { e.active = true; e.log.Info("offense agent activated") }
func (e *Engine) Deactivate()      { e.active = false; e.log.Info("offense agent deactivated") }
func (e *Engine) Active() bool     { return e.active }

// Reset drops results retained from previous operations.
func (e *Engine) Reset() {
	e.lastAssessment = nil
	e.lastSimulation = nil
	e.log.Debug("offense agent state reset")
}

// Status reports the externally visible agent state.
func (e *Engine) Status() agent.Status {
	state := map[string]any{
		"has_assessment": e.lastAssessment != nil,
		"has_simulation": e.lastSimulation != nil,
	}
	if e.lastSimulation != nil {
		state["last_attack_type"] = e.lastSimulation.AttackType
		state["last_outcome"] = e.lastSimulation.Outcome
	}
	return agent.Status{
		Name:        "Offensive Agent",
		Description: "Simulates attacks and probes for weaknesses",
		Capabilities: []string{
			"vulnerability_assessment",
			"attack_simulation",
			"penetration_testing",
			"exploit_development",
			"social_engineering",
		},
		Active: e.active,
		State:  state,
	}
}

// Process dispatches an operation request.
func (e *Engine) Process(req agent.Request) (any, error) {
	if !e.active {
		return nil, fmt.Errorf("%w: offense", agent.ErrInactiveAgent)
	}

	switch Op(req.Op) {
	case OpVulnerabilityAssessment:
		targets, _ := req.Params["targets"].([]config.TargetSystem)
		depth := agent.ParamString(req.Params, "depth", "medium")
		return e.VulnerabilityAssessment(targets, depth)
	case OpAttackSimulation:
		attackType := agent.ParamString(req.Params, "attack_type", "generic")
		defenses, _ := req.Params["defenses"].(map[string]float64)
		return e.AttackSimulation(attackType, defenses)
	case OpPenetrationTest:
		targets, _ := req.Params["targets"].([]config.TargetSystem)
		params := PentestParams{
			Depth:                agent.ParamString(req.Params, "depth", ""),
			SkipPostExploitation: !agent.ParamBool(req.Params, "post_exploitation", true),
		}
		return e.PenetrationTest(targets, params)
	default:
		return nil, agent.UnknownOp(req.Op)
	}
}

// VulnerabilityAssessment synthesizes vulnerabilities for the given
// targets. Deeper scans surface proportionally more findings.
func (e *Engine) VulnerabilityAssessment(targets []config.TargetSystem, depth string) (*AssessmentResult, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no target systems provided", agent.ErrNoInput)
	}

	factor, ok := depthFactors[depth]
	if !ok {
		factor = depthFactors["medium"]
		depth = "medium"
	}

	types, weights := exploitabilityWeights()

	var vulns []models.Vulnerability
	for i, target := range targets {
		serviceCount := len(target.Services)
		if serviceCount == 0 {
			serviceCount = 1
		}

		count := int(1 + float64(serviceCount)*factor*e.rng.UniformFloat64(0.7, 1.3))
		for v := 0; v < count; v++ {
			vulnType := types[e.rng.WeightedIndex(weights)]
			exploitability := vulnerabilityExploitability[vulnType]
			severity := severityFromScore(exploitability * e.rng.UniformFloat64(0.8, 1.2))

			vulns = append(vulns, models.Vulnerability{
				Name:                   vulnerabilityName(vulnType),
				Type:                   vulnType,
				Severity:               severity,
				ExploitationDifficulty: 1 - exploitability,
				AffectedSystem:         fmt.Sprintf("%s_%d", target.Type, i),
				RemediationAvailable:   e.rng.Float64() > 0.1,
				Description:            vulnerabilityDescription(vulnType),
			})
		}
	}

	counts := map[string]int{}
	for _, v := range vulns {
		counts[v.Severity]++
	}

	result := &AssessmentResult{
		TargetsAssessed: len(targets),
		ScanDepth:       depth,
		Vulnerabilities: vulns,
		SeverityCounts:  counts,
	}
	e.lastAssessment = result
	e.log.Info("vulnerability assessment complete",
		"targets", len(targets), "depth", depth, "vulnerabilities", len(vulns))
	return result, nil
}

func exploitabilityWeights() ([]string, []float64) {
	types := make([]string, 0, len(vulnerabilityExploitability))
	for t := range vulnerabilityExploitability {
		types = append(types, t)
	}
	sort.Strings(types)
	weights := make([]float64, len(types))
	for i, t := range types {
		weights[i] = vulnerabilityExploitability[t]
	}
	return types, weights
}

func severityFromScore(score float64) string {
	switch {
	case score > 0.8:
		return models.SeverityCritical
	case score > 0.6:
		return models.SeverityHigh
	case score > 0.4:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func vulnerabilityName(vulnType string) string {
	names := map[string]string{
		"unpatched_software":    "Unpatched software component",
		"weak_credentials":      "Weak credential policy",
		"misconfiguration":      "Insecure service configuration",
		"sql_injection":         "SQL injection vector",
		"xss":                   "Cross-site scripting vector",
		"csrf":                  "Cross-site request forgery vector",
		"open_ports":            "Unnecessary exposed port",
		"default_credentials":   "Default credentials in use",
		"outdated_cryptography": "Deprecated cryptographic protocol",
	}
	if name, ok := names[vulnType]; ok {
		return name
	}
	return "Unclassified weakness"
}

func vulnerabilityDescription(vulnType string) string {
	descriptions := map[string]string{
		"unpatched_software":    "Known CVEs remain unpatched on the affected system",
		"weak_credentials":      "Passwords vulnerable to dictionary or brute force attacks",
		"misconfiguration":      "Service settings deviate from hardening baselines",
		"sql_injection":         "User input reaches SQL queries without sanitization",
		"xss":                   "User input is reflected into pages without encoding",
		"csrf":                  "State-changing requests lack anti-forgery tokens",
		"open_ports":            "Services listen on ports with no business justification",
		"default_credentials":   "Factory credentials were never rotated",
		"outdated_cryptography": "Legacy TLS versions or weak ciphers accepted",
	}
	if d, ok := descriptions[vulnType]; ok {
		return d
	}
	return "Weakness identified during automated assessment"
}

// remediationAction returns the remediation text for a vulnerability type,
// used by penetration test reporting.
func remediationAction(vulnType string) string {
	actions := map[string]string{
		"unpatched_software":    "Apply vendor patches and enable automatic updates",
		"weak_credentials":      "Enforce strong password policy and multi-factor authentication",
		"misconfiguration":      "Apply hardening baseline and audit configuration drift",
		"sql_injection":         "Use parameterized queries and input validation",
		"xss":                   "Encode output and deploy a content security policy",
		"csrf":                  "Add anti-forgery tokens to state-changing requests",
		"open_ports":            "Close unused ports and restrict access with firewall rules",
		"default_credentials":   "Rotate all default credentials immediately",
		"outdated_cryptography": "Disable legacy protocols and upgrade cipher suites",
	}
	if a, ok := actions[vulnType]; ok {
		return a
	}
	return "Review and remediate the identified weakness"
}
