// Package defense implements the defender side of the simulator: risk-based
// remediation planning, countermeasure selection against live attacks, and
// posture management with effectiveness scoring.
package defense

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cybershield-labs/range-core/internal/agent"
	"github.com/cybershield-labs/range-core/pkg/logger"
	"github.com/cybershield-labs/range-core/pkg/models"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

// Op is a defense engine operation.
type Op string

const (
	OpAttackDetected    Op = "attack_detected"
	OpVulnerabilityScan Op = "vulnerability_scan"
	OpSystemUpdate      Op = "system_update"
	OpRecommendations   Op = "generate_recommendations"
)

const attackHistoryCap = 10

// Catalog of deployable defense measures and their maximum effectiveness.
var measureCatalog = map[string]float64{
	"firewall_rules":       0.8,
	"ids_configuration":    0.75,
	"patch_management":     0.9,
	"access_control":       0.85,
	"data_encryption":      0.95,
	"network_segmentation": 0.7,
	"endpoint_protection":  0.8,
	"backup_systems":       0.6,
}

var severityWeights = map[string]float64{
	models.SeverityCritical: 0.9,
	models.SeverityHigh:     0.7,
	models.SeverityMedium:   0.5,
	models.SeverityLow:      0.3,
}

// RemediationPlan is one risk-ranked entry of a vulnerability scan response.
type RemediationPlan struct {
	Vulnerability string  `json:"vulnerability"`
	RiskScore     float64 `json:"risk_score"`
	Priority      string  `json:"priority"`
	Action        string  `json:"action"`
}

// ScanResponse is the outcome of a vulnerability_scan call.
type ScanResponse struct {
	VulnerabilitiesAssessed int               `json:"vulnerabilities_assessed"`
	PrioritizedActions      []RemediationPlan `json:"prioritized_actions"`
}

// Countermeasure is one defensive action selected against an attack.
type Countermeasure struct {
	Action     string `json:"action"`
	Priority   string `json:"priority"`
	ThreatType string `json:"threat_type"`
}

// AttackResponse is the outcome of an attack_detected call.
type AttackResponse struct {
	ThreatsProcessed int              `json:"threats_processed"`
	Countermeasures  []Countermeasure `json:"countermeasures"`
}

// UpdateResult is the outcome of a system_update call.
type UpdateResult struct {
	MeasuresImplemented  []string `json:"measures_implemented"`
	DefenseEffectiveness float64  `json:"defense_effectiveness"`
	WeakPoints           []string `json:"weak_points"`
	StrongPoints         []string `json:"strong_points"`
}

type attackRecord struct {
	ThreatType string    `json:"threat_type"`
	Timestamp  time.Time `json:"timestamp"`
}

// Engine is the defense agent.
type Engine struct {
	rng    *utils.RandSource
	log    *slog.Logger
	active bool

	implemented   map[string]float64
	attackHistory []attackRecord
	effectiveness float64
}

// NewEngine creates a defense engine. No measures are implemented until a
// system_update deploys them.
func NewEngine(rng *utils.RandSource) *Engine {
	return &Engine{
		rng:         rng,
		log:         logger.With("agent", "defense"),
		implemented: map[string]float64{},
	}
}

func (e *Engine) Kind() agent.Kind { return agent.KindDefense }
func (e *Engine) Activate()        { e.active = true; e.log.Info("defense agent activated") }
func (e *Engine) Deactivate()      { e.active = false; e.log.Info("defense agent deactivated") }
func (e *Engine) Active() bool     { return e.active }

// Reset returns the posture to its initial, undeployed state.
func (e *Engine) Reset() {
	e.implemented = map[string]float64{}
	e.attackHistory = nil
	e.effectiveness = 0
	e.log.Debug("defense agent state reset")
}

// ImplementedMeasures returns a copy of the current posture.
func (e *Engine) ImplementedMeasures() map[string]float64 {
	out := make(map[string]float64, len(e.implemented))
	for k, v := range e.implemented {
		out[k] = v
	}
	return out
}

// Status reports the externally visible agent state.
func (e *Engine) Status() agent.Status {
	return agent.Status{
		Name:        "Defense Agent",
		Description: "Responds to threats and hardens systems",
		Capabilities: []string{
			"threat_response",
			"vulnerability_remediation",
			"system_hardening",
			"incident_handling",
			"defense_planning",
		},
		Active: e.active,
		State: map[string]any{
			"implemented_measures":  e.ImplementedMeasures(),
			"defense_effectiveness": e.effectiveness,
			"attacks_processed":     len(e.attackHistory),
		},
	}
}

// Process dispatches an operation request.
func (e *Engine) Process(req agent.Request) (any, error) {
	if !e.active {
		return nil, fmt.Errorf("%w: defense", agent.ErrInactiveAgent)
	}

	switch Op(req.Op) {
	case OpAttackDetected:
		threats, _ := req.Params["threats"].([]models.ThreatAlert)
		attackType := agent.ParamString(req.Params, "attack_type", "")
		return e.ProcessAttack(attackType, threats)
	case OpVulnerabilityScan:
		vulns, _ := req.Params["vulnerabilities"].([]models.Vulnerability)
		return e.ProcessVulnerabilityScan(vulns)
	case OpSystemUpdate:
		measures, _ := req.Params["measures"].([]string)
		return e.ProcessSystemUpdate(measures)
	case OpRecommendations:
		return e.Recommendations(), nil
	default:
		return nil, agent.UnknownOp(req.Op)
	}
}

// ProcessVulnerabilityScan ranks vulnerabilities by risk and returns a
// prioritized remediation plan. Risk combines severity weight with ease of
// exploitation.
func (e *Engine) ProcessVulnerabilityScan(vulns []models.Vulnerability) (*ScanResponse, error) {
	if len(vulns) == 0 {
		return nil, fmt.Errorf("%w: no vulnerabilities provided", agent.ErrNoInput)
	}

	plans := make([]RemediationPlan, 0, len(vulns))
	for _, v := range vulns {
		weight, ok := severityWeights[v.Severity]
		if !ok {
			weight = severityWeights[models.SeverityLow]
		}
		risk := weight * (1 - v.ExploitationDifficulty*0.5)

		var priority string
		switch {
		case risk > 0.7:
			priority = models.SeverityHigh
		case risk > 0.4:
			priority = models.SeverityMedium
		default:
			priority = models.SeverityLow
		}

		plans = append(plans, RemediationPlan{
			Vulnerability: v.Name,
			RiskScore:     utils.Round(risk, 3),
			Priority:      priority,
			Action:        remediationForType(v.Type),
		})
	}

	sort.SliceStable(plans, func(i, j int) bool { return plans[i].RiskScore > plans[j].RiskScore })

	e.log.Info("vulnerability scan processed", "vulnerabilities", len(vulns))
	return &ScanResponse{
		VulnerabilitiesAssessed: len(vulns),
		PrioritizedActions:      plans,
	}, nil
}

// ProcessAttack selects countermeasures for detected threats and records
// them in the bounded attack history.
func (e *Engine) ProcessAttack(attackType string, threats []models.ThreatAlert) (*AttackResponse, error) {
	if attackType == "" && len(threats) == 0 {
		return nil, fmt.Errorf("%w: no attack data provided", agent.ErrNoInput)
	}

	types := map[string]bool{}
	if attackType != "" {
		types[attackType] = true
	}
	for _, t := range threats {
		types[t.ThreatType] = true
	}

	now := time.Now()
	var countermeasures []Countermeasure
	sortedTypes := make([]string, 0, len(types))
	for threatType := range types {
		sortedTypes = append(sortedTypes, threatType)
	}
	sort.Strings(sortedTypes)

	for _, threatType := range sortedTypes {
		e.attackHistory = append(e.attackHistory, attackRecord{ThreatType: threatType, Timestamp: now})
		countermeasures = append(countermeasures, countermeasuresFor(threatType)...)
	}
	if len(e.attackHistory) > attackHistoryCap {
		e.attackHistory = e.attackHistory[len(e.attackHistory)-attackHistoryCap:]
	}

	// Always refresh detection content alongside targeted responses
	countermeasures = append(countermeasures, Countermeasure{
		Action:   "Update monitoring rules",
		Priority: models.SeverityMedium,
	})

	e.log.Info("attack processed", "threat_types", len(types), "countermeasures", len(countermeasures))
	return &AttackResponse{
		ThreatsProcessed: len(threats),
		Countermeasures:  countermeasures,
	}, nil
}

func countermeasuresFor(threatType string) []Countermeasure {
	switch threatType {
	case "ddos", "dos_attack":
		return []Countermeasure{
			{Action: "Enable DDoS protection and rate limiting", Priority: models.SeverityCritical, ThreatType: threatType},
		}
	case "ransomware":
		return []Countermeasure{
			{Action: "Isolate infected systems", Priority: models.SeverityCritical, ThreatType: threatType},
			{Action: "Restore from clean backups", Priority: models.SeverityHigh, ThreatType: threatType},
		}
	case "phishing":
		return []Countermeasure{
			{Action: "Block malicious domains", Priority: models.SeverityMedium, ThreatType: threatType},
			{Action: "Reset compromised credentials", Priority: models.SeverityHigh, ThreatType: threatType},
		}
	case "brute_force":
		return []Countermeasure{
			{Action: "Enable account lockout policy", Priority: models.SeverityHigh, ThreatType: threatType},
		}
	case "data_exfiltration":
		return []Countermeasure{
			{Action: "Block egress to destination and enable data loss prevention", Priority: models.SeverityCritical, ThreatType: threatType},
		}
	case "command_and_control":
		return []Countermeasure{
			{Action: "Sinkhole command and control destinations", Priority: models.SeverityCritical, ThreatType: threatType},
		}
	case "port_scan":
		return []Countermeasure{
			{Action: "Block scanning source at perimeter", Priority: models.SeverityMedium, ThreatType: threatType},
		}
	case "malicious_payload":
		return []Countermeasure{
			{Action: "Quarantine payload and update signatures", Priority: models.SeverityHigh, ThreatType: threatType},
		}
	default:
		return nil
	}
}

// ProcessSystemUpdate deploys the named measures at catalog effectiveness
// and recomputes the posture score over the full catalog.
func (e *Engine) ProcessSystemUpdate(measures []string) (*UpdateResult, error) {
	if len(measures) == 0 {
		return nil, fmt.Errorf("%w: no measures provided", agent.ErrNoInput)
	}

	var implemented []string
	for _, measure := range measures {
		strength, ok := measureCatalog[measure]
		if !ok {
			e.log.Warn("unknown defense measure ignored", "measure", measure)
			continue
		}
		e.implemented[measure] = strength
		implemented = append(implemented, measure)
	}

	total := 0.0
	for _, strength := range e.implemented {
		total += strength
	}
	e.effectiveness = total / float64(len(measureCatalog))

	var weak, strong []string
	for _, measure := range catalogMeasures() {
		strength, ok := e.implemented[measure]
		switch {
		case !ok:
			weak = append(weak, measure)
		case strength > 0.7:
			strong = append(strong, measure)
		}
	}

	e.log.Info("system update applied",
		"implemented", len(implemented), "effectiveness", utils.Round(e.effectiveness, 3))
	return &UpdateResult{
		MeasuresImplemented:  implemented,
		DefenseEffectiveness: e.effectiveness,
		WeakPoints:           weak,
		StrongPoints:         strong,
	}, nil
}

// Recommendations proposes posture improvements: missing measures first,
// then implemented measures running below strength, ordered by impact.
func (e *Engine) Recommendations() []models.Recommendation {
	var recs []models.Recommendation

	for _, measure := range catalogMeasures() {
		impact := measureCatalog[measure]
		if _, ok := e.implemented[measure]; ok {
			continue
		}
		priority := models.SeverityMedium
		if impact > 0.8 {
			priority = models.SeverityHigh
		}
		recs = append(recs, models.Recommendation{
			Priority:    priority,
			Action:      "Implement " + measure,
			Description: measureDescription(measure),
			Impact:      impact,
		})
	}

	for _, measure := range catalogMeasures() {
		current, ok := e.implemented[measure]
		if !ok || current >= 0.6 {
			continue
		}
		recs = append(recs, models.Recommendation{
			Priority:    models.SeverityMedium,
			Action:      "Strengthen " + measure,
			Description: measureDescription(measure),
			Impact:      measureCatalog[measure] - current,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Impact > recs[j].Impact })
	return recs
}

func catalogMeasures() []string {
	measures := make([]string, 0, len(measureCatalog))
	for m := range measureCatalog {
		measures = append(measures, m)
	}
	sort.Strings(measures)
	return measures
}

func measureDescription(measure string) string {
	descriptions := map[string]string{
		"firewall_rules":       "Perimeter filtering of inbound and outbound connections",
		"ids_configuration":    "Intrusion detection tuned to current traffic patterns",
		"patch_management":     "Timely deployment of vendor security patches",
		"access_control":       "Least-privilege access and privilege management",
		"data_encryption":      "Encryption of data at rest and in transit",
		"network_segmentation": "Isolation of network zones to contain movement",
		"endpoint_protection":  "Endpoint detection and response on hosts",
		"backup_systems":       "Tested, isolated backups for recovery",
	}
	if d, ok := descriptions[measure]; ok {
		return d
	}
	return "Defensive measure"
}

func remediationForType(vulnType string) string {
	actions := map[string]string{
		"unpatched_software":    "Schedule emergency patching window",
		"weak_credentials":      "Enforce credential policy and enable multi-factor authentication",
		"misconfiguration":      "Reapply hardening baseline",
		"sql_injection":         "Deploy input validation and parameterized queries",
		"xss":                   "Deploy output encoding and content security policy",
		"csrf":                  "Deploy anti-forgery tokens",
		"open_ports":            "Close unneeded ports and tighten firewall rules",
		"default_credentials":   "Rotate default credentials",
		"outdated_cryptography": "Upgrade cryptographic configuration",
	}
	if a, ok := actions[vulnType]; ok {
		return a
	}
	return "Investigate and remediate"
}
