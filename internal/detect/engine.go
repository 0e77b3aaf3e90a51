// Package detect implements the detection pipeline: rolling traffic
// baseline, anomaly scoring, threat classification with alert dedup, and
// detection testing against simulated attack paths.
package detect

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/cybershield-labs/range-core/internal/agent"
	"github.com/cybershield-labs/range-core/pkg/logger"
	"github.com/cybershield-labs/range-core/pkg/models"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

// Op is a detection engine operation.
type Op string

const (
	OpAnalyzeTraffic   Op = "analyze_traffic"
	OpCheckBaseline    Op = "check_baseline"
	OpDetectSimulation Op = "detect_simulation"
)

const (
	historyCap        = 100
	alertCacheCap     = 20
	baselineThreshold = 30
	dedupWindow       = 300 * time.Second

	// Overall anomaly score above this triggers per-record classification
	detectionThreshold = 0.6
	// Alerts with confidence at or below this are suppressed
	reportThreshold = 0.5
	// Dimensions scoring above this are listed as anomaly factors
	anomalyFactorThreshold = 0.7
)

// Per-dimension threshold divisors/multipliers for anomaly scoring.
var detectionThresholds = map[string]float64{
	models.AnomalyConnectionRate:      0.75,
	models.AnomalyPacketSize:          0.8,
	models.AnomalyConnectionDiversity: 0.7,
	models.AnomalyProtocol:            0.8,
	models.AnomalyPayload:             0.85,
}

// AnalysisResult is the outcome of one analyze_traffic call.
type AnalysisResult struct {
	RecordsAnalyzed     int                  `json:"records_analyzed"`
	BaselineEstablished bool                 `json:"baseline_established"`
	ThreatLevel         string               `json:"threat_level"`
	DetectedThreats     []models.ThreatAlert `json:"detected_threats"`
	AnomalySummary      AnomalySummary       `json:"anomaly_summary"`
}

// AnomalySummary condenses a score set for reporting.
type AnomalySummary struct {
	OverallScore float64         `json:"overall_score"`
	AnomalyLevel string          `json:"anomaly_level"`
	TopAnomalies []AnomalyFactor `json:"top_anomalies"`
}

// AnomalyFactor is one named dimension and its score.
type AnomalyFactor struct {
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// BaselineStatus is the outcome of a check_baseline call.
type BaselineStatus struct {
	Established bool                 `json:"baseline_established"`
	Stats       models.BaselineStats `json:"baseline_stats"`
	HistorySize int                  `json:"traffic_history_size"`
}

// State is the typed detection state, owned exclusively by the engine.
type State struct {
	BaselineEstablished bool
	Baseline            models.BaselineStats
	ThreatLevel         string
	AnomalyScores       models.AnomalyScoreSet
	RecentDetections    []models.ThreatAlert
}

// Engine is the detection agent. Once a baseline is established it never
// reverts to the no-baseline state.
type Engine struct {
	rng    *utils.RandSource
	log    *slog.Logger
	active bool

	history      []models.TrafficRecord
	recentAlerts []models.ThreatAlert
	state        State
}

// NewEngine creates a detection engine drawing randomness from rng.
func NewEngine(rng *utils.RandSource) *Engine {
	return &Engine{
		rng:   rng,
		log:   logger.With("agent", "detection"),
		state: State{ThreatLevel: "low", AnomalyScores: defaultScores()},
	}
}

func (e *Engine) Kind() agent.Kind { return agent.KindDetection }
func (e *Engine) Activate()        { e.active = true; e.log.Info("detection agent activated") }
func (e *Engine) Deactivate()      { e.active = false; e.log.Info("detection agent deactivated") }
func (e *Engine) Active() bool     { return e.active }

// Reset clears all detection state, including the baseline and alert cache.
func (e *Engine) Reset() {
	e.history = nil
	e.recentAlerts = nil
	e.state = State{ThreatLevel: "low", AnomalyScores: defaultScores()}
	e.log.Debug("detection agent state reset")
}

// Status reports the externally visible agent state.
func (e *Engine) Status() agent.Status {
	return agent.Status{
		Name:        "Detection Agent",
		Description: "Monitors for threats and anomalies",
		Capabilities: []string{
			"traffic_analysis",
			"anomaly_detection",
			"pattern_recognition",
			"threat_intelligence",
			"behavioral_analysis",
		},
		Active: e.active,
		State: map[string]any{
			"baseline_established": e.state.BaselineEstablished,
			"current_threat_level": e.state.ThreatLevel,
			"anomaly_scores":       e.state.AnomalyScores,
			"recent_detections":    len(e.state.RecentDetections),
		},
	}
}

// Process dispatches an operation request.
func (e *Engine) Process(req agent.Request) (any, error) {
	if !e.active {
		return nil, fmt.Errorf("%w: detection", agent.ErrInactiveAgent)
	}

	switch Op(req.Op) {
	case OpAnalyzeTraffic:
		traffic, _ := req.Params["traffic_data"].([]models.TrafficRecord)
		return e.AnalyzeTraffic(traffic)
	case OpCheckBaseline:
		return e.CheckBaseline(), nil
	case OpDetectSimulation:
		path, _ := req.Params["attack_path"].([]models.AttackStep)
		return e.DetectSimulation(path)
	default:
		return nil, agent.UnknownOp(req.Op)
	}
}

// AnalyzeTraffic ingests traffic records, updating the baseline and
// producing classified, deduplicated threat alerts.
func (e *Engine) AnalyzeTraffic(traffic []models.TrafficRecord) (*AnalysisResult, error) {
	if len(traffic) == 0 {
		return nil, fmt.Errorf("%w: no traffic data provided", agent.ErrNoInput)
	}

	e.history = append(e.history, traffic...)
	if len(e.history) > historyCap {
		e.history = e.history[len(e.history)-historyCap:]
	}

	if !e.state.BaselineEstablished && len(e.history) >= baselineThreshold {
		e.establishBaseline()
	}

	scores := e.calculateAnomalyScores(traffic)
	e.state.AnomalyScores = scores

	threats := e.identifyThreats(traffic, scores)
	e.state.RecentDetections = threats

	level := determineThreatLevel(threats)
	e.state.ThreatLevel = level

	if len(threats) > 0 {
		e.log.Info("potential threats detected", "count", len(threats), "threat_level", level)
		for _, t := range threats {
			e.log.Debug("threat detected", "type", t.ThreatType, "confidence", t.Confidence)
		}
	}

	return &AnalysisResult{
		RecordsAnalyzed:     len(traffic),
		BaselineEstablished: e.state.BaselineEstablished,
		ThreatLevel:         level,
		DetectedThreats:     threats,
		AnomalySummary:      summarizeAnomalies(scores),
	}, nil
}

// CheckBaseline reports the baseline status and retained history size.
func (e *Engine) CheckBaseline() BaselineStatus {
	return BaselineStatus{
		Established: e.state.BaselineEstablished,
		Stats:       e.state.Baseline,
		HistorySize: len(e.history),
	}
}

// establishBaseline computes reference statistics from the retained
// history. Recomputation over identical history is idempotent.
func (e *Engine) establishBaseline() {
	if len(e.history) < baselineThreshold {
		e.log.Warn("not enough traffic history to establish baseline", "history_size", len(e.history))
		return
	}

	packetSizes := make([]float64, 0, len(e.history))
	destinations := map[string]struct{}{}
	protocolCounts := map[string]int{}
	for _, rec := range e.history {
		packetSizes = append(packetSizes, float64(rec.PayloadSize))
		destinations[rec.DestinationIP] = struct{}{}
		protocolCounts[rec.Protocol]++
	}

	distribution := make(map[string]float64, len(protocolCounts))
	for protocol, count := range protocolCounts {
		distribution[protocol] = float64(count) / float64(len(e.history))
	}

	e.state.Baseline = models.BaselineStats{
		AvgConnectionRate:    1.0, // each retained record counts as one connection
		AvgPacketSize:        utils.Mean(packetSizes),
		StdPacketSize:        utils.StdDev(packetSizes),
		UniqueDestinations:   len(destinations),
		ProtocolDistribution: distribution,
		EstablishedAt:        time.Now(),
	}
	e.state.BaselineEstablished = true
	e.log.Info("traffic baseline established", "history_size", len(e.history))
}

func defaultScores() models.AnomalyScoreSet {
	return models.AnomalyScoreSet{
		models.AnomalyConnectionRate:      0.0,
		models.AnomalyPacketSize:          0.0,
		models.AnomalyConnectionDiversity: 0.0,
		models.AnomalyProtocol:            0.0,
		models.AnomalyPayload:             0.5, // mid-range default pre-baseline
	}
}

func (e *Engine) calculateAnomalyScores(traffic []models.TrafficRecord) models.AnomalyScoreSet {
	if !e.state.BaselineEstablished {
		return defaultScores()
	}

	baseline := e.state.Baseline

	// Connection rate versus baseline
	var connectionRate float64
	if baseline.AvgConnectionRate > 0 {
		rate := float64(len(traffic)) / (baseline.AvgConnectionRate * detectionThresholds[models.AnomalyConnectionRate])
		connectionRate = math.Min(1.0, rate)
	} else {
		connectionRate = 0.5
	}

	// Packet size z-score versus baseline
	var packetSize float64
	if baseline.StdPacketSize > 0 {
		sizes := make([]float64, 0, len(traffic))
		for _, rec := range traffic {
			sizes = append(sizes, float64(rec.PayloadSize))
		}
		z := math.Abs(utils.Mean(sizes)-baseline.AvgPacketSize) / baseline.StdPacketSize
		packetSize = math.Min(1.0, z/detectionThresholds[models.AnomalyPacketSize])
	}

	// Destination diversity versus the baseline expectation for a window
	// of this size
	var diversity float64
	expectedUnique := float64(baseline.UniqueDestinations) * float64(len(traffic)) / math.Max(1, float64(len(e.history)))
	if expectedUnique > 0 {
		destinations := map[string]struct{}{}
		for _, rec := range traffic {
			destinations[rec.DestinationIP] = struct{}{}
		}
		ratio := float64(len(destinations)) / expectedUnique
		diversity = utils.ClampFloat64(math.Abs(1-ratio)*detectionThresholds[models.AnomalyConnectionDiversity], 0, 1)
	}

	// Largest per-protocol distribution delta
	var protocolAnomaly float64
	currentCounts := map[string]int{}
	for _, rec := range traffic {
		currentCounts[rec.Protocol]++
	}
	for protocol, count := range currentCounts {
		currentRatio := float64(count) / float64(len(traffic))
		delta := math.Abs(currentRatio - baseline.ProtocolDistribution[protocol])
		if delta > protocolAnomaly {
			protocolAnomaly = delta
		}
	}

	// Fraction of records with anomalous payload characteristics
	anomalous := 0
	for _, rec := range traffic {
		if payloadAnomalous(rec) {
			anomalous++
		}
	}
	payload := math.Min(1.0, float64(anomalous)/math.Max(1, float64(len(traffic))))

	return models.AnomalyScoreSet{
		models.AnomalyConnectionRate:      connectionRate,
		models.AnomalyPacketSize:          packetSize,
		models.AnomalyConnectionDiversity: diversity,
		models.AnomalyProtocol:            protocolAnomaly,
		models.AnomalyPayload:             payload,
	}
}

// payloadAnomalous flags prelabeled malicious records and size/port
// combinations atypical for common services.
func payloadAnomalous(rec models.TrafficRecord) bool {
	if rec.IsMalicious {
		return true
	}
	switch {
	case (rec.Port == 80 || rec.Port == 443) && rec.PayloadSize > 50000:
		return true
	case (rec.Port == 22 || rec.Port == 23) && rec.PayloadSize > 5000:
		return true
	case rec.Port == 53 && rec.PayloadSize > 1000:
		return true
	case rec.Port == 25 && rec.PayloadSize > 10000:
		return true
	}
	return false
}

func (e *Engine) identifyThreats(traffic []models.TrafficRecord, scores models.AnomalyScoreSet) []models.ThreatAlert {
	var threats []models.ThreatAlert

	overall := meanScore(scores)

	var factors []string
	for _, dim := range scoreDimensions() {
		if scores[dim] > anomalyFactorThreshold {
			factors = append(factors, dim)
		}
	}

	for _, rec := range traffic {
		if !rec.IsMalicious && overall <= detectionThreshold {
			continue
		}

		threatType, confidence := classifyThreat(rec, scores)
		if confidence <= reportThreshold {
			continue
		}

		alert := models.ThreatAlert{
			ID:             utils.GenerateAlertID(threatType),
			SourceIP:       rec.SourceIP,
			DestinationIP:  rec.DestinationIP,
			Protocol:       rec.Protocol,
			Timestamp:      rec.Timestamp,
			ThreatType:     threatType,
			Confidence:     confidence,
			AnomalyFactors: factors,
			Description:    threatDescription(threatType, rec),
		}

		if e.isDuplicateAlert(alert) {
			continue
		}
		threats = append(threats, alert)
		e.recentAlerts = append(e.recentAlerts, alert)
		if len(e.recentAlerts) > alertCacheCap {
			e.recentAlerts = e.recentAlerts[len(e.recentAlerts)-alertCacheCap:]
		}
	}

	return threats
}

// classifyThreat walks a priority-ordered decision tree keyed on the
// dominant anomaly dimension.
func classifyThreat(rec models.TrafficRecord, scores models.AnomalyScoreSet) (string, float64) {
	wellKnown := map[int]bool{21: true, 22: true, 23: true, 25: true, 53: true, 80: true, 443: true, 445: true, 3389: true}
	authProtocols := map[string]bool{"ssh": true, "ftp": true, "smtp": true}

	switch {
	case scores[models.AnomalyConnectionRate] > 0.8 && scores[models.AnomalyConnectionDiversity] < 0.3:
		return "dos_attack", scores[models.AnomalyConnectionRate]
	case wellKnown[rec.Port] && scores[models.AnomalyConnectionDiversity] > 0.8:
		return "port_scan", scores[models.AnomalyConnectionDiversity]
	case rec.PayloadSize > 10000 && scores[models.AnomalyPacketSize] > 0.7:
		return "data_exfiltration", scores[models.AnomalyPacketSize]
	case (rec.Protocol == "tcp" || rec.Protocol == "https") && scores[models.AnomalyProtocol] > 0.7:
		return "command_and_control", scores[models.AnomalyProtocol]
	case scores[models.AnomalyPayload] > 0.8:
		return "malicious_payload", scores[models.AnomalyPayload]
	case authProtocols[rec.Protocol] && scores[models.AnomalyConnectionRate] > 0.7:
		return "brute_force", scores[models.AnomalyConnectionRate]
	default:
		// Fallback confidence is the mean of all dimension scores
		return "suspicious_activity", meanScore(scores)
	}
}

func threatDescription(threatType string, rec models.TrafficRecord) string {
	switch threatType {
	case "dos_attack":
		return fmt.Sprintf("Potential DoS attack detected from %s", rec.SourceIP)
	case "port_scan":
		return fmt.Sprintf("Port scanning activity detected from %s", rec.SourceIP)
	case "data_exfiltration":
		return fmt.Sprintf("Unusual data transfer to %s", rec.DestinationIP)
	case "command_and_control":
		return fmt.Sprintf("Potential C2 communication with %s", rec.DestinationIP)
	case "malicious_payload":
		return fmt.Sprintf("Suspicious payload detected in traffic to %s", rec.DestinationIP)
	case "brute_force":
		return fmt.Sprintf("Possible brute force attempt on %s service", rec.Protocol)
	default:
		return fmt.Sprintf("Anomalous traffic pattern detected between %s and %s", rec.SourceIP, rec.DestinationIP)
	}
}

// isDuplicateAlert suppresses alerts matching a recent alert on
// source/destination/type within the dedup window.
func (e *Engine) isDuplicateAlert(alert models.ThreatAlert) bool {
	for _, recent := range e.recentAlerts {
		if recent.SourceIP == alert.SourceIP &&
			recent.DestinationIP == alert.DestinationIP &&
			recent.ThreatType == alert.ThreatType &&
			absDuration(recent.Timestamp.Sub(alert.Timestamp)) < dedupWindow {
			return true
		}
	}
	return false
}

func determineThreatLevel(threats []models.ThreatAlert) string {
	if len(threats) == 0 {
		return "low"
	}

	criticalTypes := map[string]bool{"command_and_control": true, "malicious_payload": true, "data_exfiltration": true}
	highTypes := map[string]bool{"brute_force": true, "dos_attack": true}

	var highConfidence, mediumConfidence, criticalCount, highCount int
	for _, t := range threats {
		if t.Confidence > 0.8 {
			highConfidence++
		} else if t.Confidence >= 0.6 {
			mediumConfidence++
		}
		if criticalTypes[t.ThreatType] {
			criticalCount++
		}
		if highTypes[t.ThreatType] {
			highCount++
		}
	}

	switch {
	case criticalCount > 0 && highConfidence > 0:
		return models.SeverityCritical
	case criticalCount > 0 || highConfidence > 2:
		return models.SeverityHigh
	case highCount > 0 || mediumConfidence > 2:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func summarizeAnomalies(scores models.AnomalyScoreSet) AnomalySummary {
	avg := meanScore(scores)

	var level string
	switch {
	case avg > 0.8:
		level = models.SeverityCritical
	case avg > 0.6:
		level = models.SeverityHigh
	case avg > 0.4:
		level = models.SeverityMedium
	default:
		level = models.SeverityLow
	}

	factors := make([]AnomalyFactor, 0, len(scores))
	for _, dim := range scoreDimensions() {
		factors = append(factors, AnomalyFactor{Type: dim, Score: scores[dim]})
	}
	sort.Slice(factors, func(i, j int) bool { return factors[i].Score > factors[j].Score })

	var top []AnomalyFactor
	for _, f := range factors {
		if len(top) >= 3 {
			break
		}
		if f.Score > 0.3 {
			top = append(top, f)
		}
	}

	return AnomalySummary{OverallScore: avg, AnomalyLevel: level, TopAnomalies: top}
}

func scoreDimensions() []string {
	return []string{
		models.AnomalyConnectionRate,
		models.AnomalyPacketSize,
		models.AnomalyConnectionDiversity,
		models.AnomalyProtocol,
		models.AnomalyPayload,
	}
}

func meanScore(scores models.AnomalyScoreSet) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range scores {
		sum += v
	}
	return sum / float64(len(scores))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
