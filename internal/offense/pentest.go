package offense

import (
	"fmt"
	"sort"

	"github.com/cybershield-labs/range-core/internal/agent"
	"github.com/cybershield-labs/range-core/pkg/config"
	"github.com/cybershield-labs/range-core/pkg/models"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

// Post-exploitation activities attempted after a successful exploit, with
// their success probabilities.
var postExploitationActivities = []struct {
	name        string
	successProb float64
}{
	{"credential_harvesting", 0.7},
	{"privilege_escalation", 0.6},
	{"lateral_movement", 0.5},
	{"persistence", 0.8},
	{"data_exfiltration", 0.4},
}

// PentestResult is the outcome of a penetration_test call.
type PentestResult struct {
	TargetsTested    int                      `json:"targets_tested"`
	ScanDepth        string                   `json:"scan_depth"`
	Vulnerabilities  []models.Vulnerability   `json:"vulnerabilities"`
	Exploited        []ExploitedVulnerability `json:"exploited_vulnerabilities"`
	PostExploitation []PostExploitationStep   `json:"post_exploitation"`
	Recommendations  []models.Recommendation  `json:"recommendations"`
}

// ExploitedVulnerability records a successful exploitation attempt.
type ExploitedVulnerability struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	AffectedSystem string `json:"affected_system"`
	Technique      string `json:"technique"`
}

// PostExploitationStep records one post-exploitation activity attempt.
type PostExploitationStep struct {
	Activity string `json:"activity"`
	Success  bool   `json:"success"`
}

// PentestParams tunes a penetration test. The zero value selects the
// defaults: a high-depth assessment with post-exploitation enabled.
type PentestParams struct {
	Depth                string
	SkipPostExploitation bool
}

// PenetrationTest runs a vulnerability assessment, attempts exploitation of
// critical and high findings, and reports prioritized remediations.
// Exploited vulnerability types are escalated to critical priority.
func (e *Engine) PenetrationTest(targets []config.TargetSystem, params PentestParams) (*PentestResult, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no target systems provided", agent.ErrNoInput)
	}

	depth := params.Depth
	if depth == "" {
		depth = "high"
	}
	assessment, err := e.VulnerabilityAssessment(targets, depth)
	if err != nil {
		return nil, err
	}

	var exploited []ExploitedVulnerability
	for _, vuln := range assessment.Vulnerabilities {
		if vuln.Severity != models.SeverityCritical && vuln.Severity != models.SeverityHigh {
			continue
		}
		exploitability := vulnerabilityExploitability[vuln.Type]
		if e.rng.BernoulliBool(exploitability) {
			exploited = append(exploited, ExploitedVulnerability{
				Name:           vuln.Name,
				Type:           vuln.Type,
				Severity:       vuln.Severity,
				AffectedSystem: vuln.AffectedSystem,
				Technique:      exploitationTechnique(vuln.Type),
			})
		}
	}

	var postExploitation []PostExploitationStep
	if len(exploited) > 0 && !params.SkipPostExploitation {
		count := e.rng.IntRange(1, len(postExploitationActivities))
		for _, activity := range utils.Sample(e.rng, postExploitationActivities, count) {
			postExploitation = append(postExploitation, PostExploitationStep{
				Activity: activity.name,
				Success:  e.rng.BernoulliBool(activity.successProb),
			})
		}
	}

	result := &PentestResult{
		TargetsTested:    len(targets),
		ScanDepth:        depth,
		Vulnerabilities:  assessment.Vulnerabilities,
		Exploited:        exploited,
		PostExploitation: postExploitation,
		Recommendations:  pentestRecommendations(assessment.Vulnerabilities, exploited),
	}
	e.log.Info("penetration test complete",
		"targets", len(targets),
		"vulnerabilities", len(assessment.Vulnerabilities),
		"exploited", len(exploited))
	return result, nil
}

func exploitationTechnique(vulnType string) string {
	techniques := map[string]string{
		"unpatched_software":    "Public exploit for known CVE",
		"weak_credentials":      "Dictionary attack against authentication",
		"misconfiguration":      "Abuse of permissive service settings",
		"sql_injection":         "Crafted SQL payload via input field",
		"xss":                   "Stored script injection",
		"csrf":                  "Forged cross-origin request",
		"open_ports":            "Direct connection to exposed service",
		"default_credentials":   "Login with vendor default credentials",
		"outdated_cryptography": "Protocol downgrade and interception",
	}
	if tech, ok := techniques[vulnType]; ok {
		return tech
	}
	return "Manual exploitation"
}

// pentestRecommendations builds one remediation per vulnerability type,
// escalating exploited types to critical and sorting by priority.
func pentestRecommendations(vulns []models.Vulnerability, exploited []ExploitedVulnerability) []models.Recommendation {
	exploitedTypes := map[string]bool{}
	for _, ex := range exploited {
		exploitedTypes[ex.Type] = true
	}

	// Highest observed severity per type
	worst := map[string]string{}
	rank := map[string]int{
		models.SeverityCritical: 0,
		models.SeverityHigh:     1,
		models.SeverityMedium:   2,
		models.SeverityLow:      3,
	}
	for _, v := range vulns {
		current, ok := worst[v.Type]
		if !ok || rank[v.Severity] < rank[current] {
			worst[v.Type] = v.Severity
		}
	}

	recs := make([]models.Recommendation, 0, len(worst))
	for vulnType, severity := range worst {
		priority := severity
		if exploitedTypes[vulnType] {
			priority = models.SeverityCritical
		}
		recs = append(recs, models.Recommendation{
			Priority:    priority,
			Action:      remediationAction(vulnType),
			Description: vulnerabilityDescription(vulnType),
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if rank[recs[i].Priority] != rank[recs[j].Priority] {
			return rank[recs[i].Priority] < rank[recs[j].Priority]
		}
		return recs[i].Action < recs[j].Action
	})
	return recs
}
