package offense

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybershield-labs/range-core/internal/agent"
	"github.com/cybershield-labs/range-core/pkg/config"
	"github.com/cybershield-labs/range-core/pkg/models"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(utils.NewRandSource(42))
	e.Activate()
	return e
}

func testTargets() []config.TargetSystem {
	return []config.TargetSystem{
		{
			Type: "server",
			OS:   "linux",
			Services: []config.TargetService{
				{Name: "http", Port: 80},
				{Name: "ssh", Port: 22},
				{Name: "dns", Port: 53},
			},
		},
		{Type: "endpoint", OS: "windows"},
	}
}

func fullDefenses() map[string]float64 {
	return map[string]float64{
		"firewall_rules":       0.8,
		"ids_configuration":    0.75,
		"patch_management":     0.9,
		"access_control":       0.85,
		"data_encryption":      0.95,
		"network_segmentation": 0.7,
		"endpoint_protection":  0.8,
		"backup_systems":       0.6,
	}
}

func TestProcessRequiresActiveAgent(t *testing.T) {
	e := NewEngine(utils.NewRandSource(1))

	_, err := e.Process(agent.Request{Op: string(OpAttackSimulation)})
	assert.ErrorIs(t, err, agent.ErrInactiveAgent)
}

func TestProcessUnknownOperation(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Process(agent.Request{Op: "deploy_implant"})
	assert.ErrorIs(t, err, agent.ErrUnknownOperation)
}

func TestVulnerabilityAssessmentEmptyTargets(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.VulnerabilityAssessment(nil, "medium")
	assert.ErrorIs(t, err, agent.ErrNoInput)
}

func TestVulnerabilityAssessmentShape(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.VulnerabilityAssessment(testTargets(), "medium")
	require.NoError(t, err)

	assert.Equal(t, 2, res.TargetsAssessed)
	assert.Equal(t, "medium", res.ScanDepth)
	require.NotEmpty(t, res.Vulnerabilities)

	validSeverities := []string{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow}
	for _, v := range res.Vulnerabilities {
		assert.Contains(t, validSeverities, v.Severity)
		assert.NotEmpty(t, v.Name)
		assert.NotEmpty(t, v.Type)
		assert.NotEmpty(t, v.AffectedSystem)
		assert.GreaterOrEqual(t, v.ExploitationDifficulty, 0.0)
		assert.LessOrEqual(t, v.ExploitationDifficulty, 1.0)
		_, known := vulnerabilityExploitability[v.Type]
		assert.True(t, known, "unknown vulnerability type %s", v.Type)
	}

	total := 0
	for _, count := range res.SeverityCounts {
		total += count
	}
	assert.Equal(t, len(res.Vulnerabilities), total)
}

func TestDeeperScansFindMoreVulnerabilities(t *testing.T) {
	// Aggregate across seeds to smooth the count jitter
	lowTotal, highTotal := 0, 0
	for seed := int64(1); seed <= 10; seed++ {
		low := NewEngine(utils.NewRandSource(seed))
		low.Activate()
		resLow, err := low.VulnerabilityAssessment(testTargets(), "low")
		require.NoError(t, err)
		lowTotal += len(resLow.Vulnerabilities)

		high := NewEngine(utils.NewRandSource(seed))
		high.Activate()
		resHigh, err := high.VulnerabilityAssessment(testTargets(), "high")
		require.NoError(t, err)
		highTotal += len(resHigh.Vulnerabilities)
	}

	assert.Greater(t, highTotal, lowTotal)
}

func TestUnknownDepthFallsBackToMedium(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.VulnerabilityAssessment(testTargets(), "extreme")
	require.NoError(t, err)
	assert.Equal(t, "medium", res.ScanDepth)
}

func TestStepSuccessProbabilityBounds(t *testing.T) {
	// evasion at complexity 0.9 against full defenses hits the floor
	prob := stepSuccessProbability("evasion", fullDefenses())
	assert.Equal(t, 0.1, prob)

	// reconnaissance unopposed comes out at 1-0.3, under the cap
	prob = stepSuccessProbability("reconnaissance", nil)
	assert.InDelta(t, 0.7, prob, 1e-9)

	for technique := range techniqueComplexity {
		p := stepSuccessProbability(technique, fullDefenses())
		assert.GreaterOrEqual(t, p, 0.1, technique)
		assert.LessOrEqual(t, p, 0.95, technique)
	}
}

func TestDefensesReduceStepSuccess(t *testing.T) {
	unopposed := stepSuccessProbability("exploitation", nil)
	opposed := stepSuccessProbability("exploitation", fullDefenses())
	assert.Less(t, opposed, unopposed)

	// a defense that does not counter the technique changes nothing
	irrelevant := stepSuccessProbability("reconnaissance", map[string]float64{"data_encryption": 0.95})
	assert.Equal(t, unopposedRecon(), irrelevant)
}

func unopposedRecon() float64 {
	return stepSuccessProbability("reconnaissance", nil)
}

func TestAttackPathTemplates(t *testing.T) {
	ransomware := attackPathTemplates("ransomware")
	assert.Len(t, ransomware, 7)
	assert.Equal(t, "reconnaissance", ransomware[0].phase)
	assert.Equal(t, "impact", ransomware[len(ransomware)-1].phase)
	assert.Equal(t, "data_encryption", ransomware[len(ransomware)-1].purpose)

	exfil := attackPathTemplates("data_exfiltration")
	assert.Len(t, exfil, 8)
	assert.Equal(t, "evasion", exfil[len(exfil)-1].purpose)

	generic := attackPathTemplates("phishing")
	assert.Len(t, generic, 5)
}

func TestAttackSimulationProductRule(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.AttackSimulation("ransomware", fullDefenses())
	require.NoError(t, err)

	product := 1.0
	for _, step := range res.Path {
		product *= step.SuccessProbability
	}
	assert.InDelta(t, product, res.SuccessProbability, 1e-9)
	assert.Contains(t, []string{"successful", "partially_successful", "failed"}, res.Outcome)
}

func TestAttackSimulationEvasionRate(t *testing.T) {
	e := newTestEngine(t)

	// data_exfiltration is the only template with an evasion-purpose step
	res, err := e.AttackSimulation("data_exfiltration", nil)
	require.NoError(t, err)

	var evasionProb float64
	for _, step := range res.Path {
		if step.Purpose == "evasion" {
			evasionProb = step.SuccessProbability
		}
	}
	assert.InDelta(t, evasionProb, res.EvasionRate, 1e-9)

	// no evasion steps means a zero rate
	res, err = e.AttackSimulation("ransomware", nil)
	require.NoError(t, err)
	assert.Zero(t, res.EvasionRate)
}

func TestCriticalFindingMissingDefenses(t *testing.T) {
	path := []models.AttackStep{{Phase: "reconnaissance", Technique: "reconnaissance", Detected: true}}

	findings := criticalFindings(path, map[string]float64{"firewall_rules": 0.8})

	var missing *models.Finding
	for i := range findings {
		if findings[i].Type == "missing_defenses" {
			missing = &findings[i]
		}
	}
	require.NotNil(t, missing)
	assert.Equal(t, models.SeverityHigh, missing.Severity)
	assert.Contains(t, missing.Description, "patch_management")
	assert.Contains(t, missing.Description, "access_control")
	assert.Contains(t, missing.Description, "endpoint_protection")
}

func TestCriticalFindingDetectionGap(t *testing.T) {
	path := []models.AttackStep{
		{Phase: "execution", Technique: "exploitation", Detected: false},
		{Phase: "exfiltration", Technique: "data_exfiltration", Detected: false},
	}

	findings := criticalFindings(path, fullDefenses())

	require.NotEmpty(t, findings)
	assert.Equal(t, "detection_gap", findings[0].Type)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)
	assert.Contains(t, findings[0].Recommendation, "monitoring")
}

func TestCriticalFindingPrivilegeEscalationAndDataLeak(t *testing.T) {
	path := []models.AttackStep{
		{Phase: "execution", Technique: "privilege_escalation", Detected: true, SuccessProbability: 0.7},
		{Phase: "exfiltration", Technique: "data_exfiltration", Purpose: "data_theft", Detected: true, SuccessProbability: 0.6},
	}

	findings := criticalFindings(path, fullDefenses())

	types := map[string]models.Finding{}
	for _, f := range findings {
		types[f.Type] = f
	}
	require.Contains(t, types, "privilege_escalation")
	assert.Contains(t, types["privilege_escalation"].Recommendation, "access control")
	require.Contains(t, types, "data_leak")
	assert.Equal(t, models.SeverityCritical, types["data_leak"].Severity)
}

func TestPenetrationTestEmptyTargets(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.PenetrationTest(nil, PentestParams{})
	assert.ErrorIs(t, err, agent.ErrNoInput)
}

func TestPenetrationTest(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.PenetrationTest(testTargets(), PentestParams{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.TargetsTested)
	assert.Equal(t, "high", res.ScanDepth)
	require.NotEmpty(t, res.Vulnerabilities)

	// exploitation only targets critical and high findings
	for _, ex := range res.Exploited {
		assert.Contains(t, []string{models.SeverityCritical, models.SeverityHigh}, ex.Severity)
		assert.NotEmpty(t, ex.Technique)
	}

	if len(res.Exploited) == 0 {
		assert.Empty(t, res.PostExploitation)
	} else {
		assert.GreaterOrEqual(t, len(res.PostExploitation), 1)
		assert.LessOrEqual(t, len(res.PostExploitation), len(postExploitationActivities))
	}

	require.NotEmpty(t, res.Recommendations)
	rank := map[string]int{
		models.SeverityCritical: 0,
		models.SeverityHigh:     1,
		models.SeverityMedium:   2,
		models.SeverityLow:      3,
	}
	for i := 1; i < len(res.Recommendations); i++ {
		assert.LessOrEqual(t,
			rank[res.Recommendations[i-1].Priority],
			rank[res.Recommendations[i].Priority],
			"recommendations must be sorted by priority")
	}
}

func TestPenetrationTestParams(t *testing.T) {
	e := newTestEngine(t)

	res, err := e.PenetrationTest(testTargets(), PentestParams{SkipPostExploitation: true})
	require.NoError(t, err)
	assert.Empty(t, res.PostExploitation)

	res, err = e.PenetrationTest(testTargets(), PentestParams{Depth: "low"})
	require.NoError(t, err)
	assert.Equal(t, "low", res.ScanDepth)
	require.NotEmpty(t, res.Vulnerabilities)
}

func TestPentestRecommendationsEscalateExploited(t *testing.T) {
	vulns := []models.Vulnerability{
		{Type: "weak_credentials", Severity: models.SeverityMedium},
		{Type: "open_ports", Severity: models.SeverityLow},
	}
	exploited := []ExploitedVulnerability{{Type: "weak_credentials", Severity: models.SeverityMedium}}

	recs := pentestRecommendations(vulns, exploited)
	require.Len(t, recs, 2)
	assert.Equal(t, models.SeverityCritical, recs[0].Priority)
	assert.Contains(t, recs[0].Action, "password")
	assert.Equal(t, models.SeverityLow, recs[1].Priority)
}

func TestResetClearsRetainedResults(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.AttackSimulation("ransomware", nil)
	require.NoError(t, err)
	require.NotNil(t, e.lastSimulation)

	e.Reset()
	assert.Nil(t, e.lastSimulation)
	assert.Nil(t, e.lastAssessment)
}

func TestDeterministicSimulation(t *testing.T) {
	run := func(seed int64) *SimulationOutcome {
		e := NewEngine(utils.NewRandSource(seed))
		e.Activate()
		res, err := e.AttackSimulation("data_exfiltration", fullDefenses())
		require.NoError(t, err)
		return res
	}

	a, b := run(7), run(7)
	assert.Equal(t, a.SuccessProbability, b.SuccessProbability)
	assert.Equal(t, a.Outcome, b.Outcome)
	require.Equal(t, len(a.Path), len(b.Path))
	for i := range a.Path {
		assert.Equal(t, a.Path[i].Detected, b.Path[i].Detected)
	}
}
