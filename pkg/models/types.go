package models

import "time"

// TrafficRecord is a single synthetic network traffic record produced by the
// traffic synthesizer and consumed by the detection pipeline.
type TrafficRecord struct {
	SourceIP      string    `json:"source_ip"`
	DestinationIP string    `json:"destination_ip"`
	Protocol      string    `json:"protocol"`
	Port          int       `json:"port"`
	PayloadSize   int       `json:"payload_size"`
	Timestamp     time.Time `json:"timestamp"`
	IsMalicious   bool      `json:"is_malicious"`
	Confidence    float64   `json:"confidence"`
	Patterns      []string  `json:"patterns"`
}

// BaselineStats summarizes historical traffic, used as the reference point
// for anomaly scoring. Established once enough history accumulates.
type BaselineStats struct {
	AvgConnectionRate    float64            `json:"avg_connection_rate"`
	AvgPacketSize        float64            `json:"avg_packet_size"`
	StdPacketSize        float64            `json:"std_packet_size"`
	UniqueDestinations   int                `json:"unique_destinations"`
	ProtocolDistribution map[string]float64 `json:"protocol_distribution"`
	EstablishedAt        time.Time          `json:"established_at"`
}

// Anomaly dimension names. Every AnomalyScoreSet carries all of them.
const (
	AnomalyConnectionRate      = "connection_rate"
	AnomalyPacketSize          = "packet_size"
	AnomalyConnectionDiversity = "connection_diversity"
	AnomalyProtocol            = "protocol_anomaly"
	AnomalyPayload             = "payload_anomaly"
)

// AnomalyScoreSet maps anomaly dimension name to a score in [0, 1].
type AnomalyScoreSet map[string]float64

// ThreatAlert is a deduplicated, classified detection finding.
type ThreatAlert struct {
	ID             string    `json:"id"`
	SourceIP       string    `json:"source_ip"`
	DestinationIP  string    `json:"destination_ip"`
	Protocol       string    `json:"protocol"`
	Timestamp      time.Time `json:"timestamp"`
	ThreatType     string    `json:"threat_type"`
	Confidence     float64   `json:"confidence"`
	AnomalyFactors []string  `json:"anomaly_factors"`
	Description    string    `json:"description"`
}

// Severity levels shared by vulnerabilities and threat reporting.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Vulnerability is a synthesized weakness on a target system.
type Vulnerability struct {
	Name                   string  `json:"name"`
	Type                   string  `json:"type"`
	Severity               string  `json:"severity"`
	ExploitationDifficulty float64 `json:"exploitation_difficulty"`
	AffectedSystem         string  `json:"affected_system"`
	RemediationAvailable   bool    `json:"remediation_available"`
	Description            string  `json:"description"`
}

// AttackStep is one phase of a simulated attack path.
type AttackStep struct {
	Phase              string  `json:"phase"`
	Technique          string  `json:"technique"`
	Purpose            string  `json:"purpose"`
	Detected           bool    `json:"detected"`
	SuccessProbability float64 `json:"success_probability"`
}

// AttackPath is an ordered sequence of attack steps representing one
// simulated intrusion attempt.
type AttackPath struct {
	AttackType string       `json:"attack_type"`
	Steps      []AttackStep `json:"steps"`
}

// Finding is a critical observation derived from a simulated attack.
type Finding struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

// Recommendation is a prioritized defensive action.
type Recommendation struct {
	Priority    string  `json:"priority"`
	Action      string  `json:"action"`
	Description string  `json:"description"`
	Impact      float64 `json:"impact,omitempty"`
}

// Server is a simulated internal server host.
type Server struct {
	IP                 string    `json:"ip"`
	Name               string    `json:"name"`
	Services           []Service `json:"services"`
	OS                 string    `json:"os"`
	VulnerabilityCount int       `json:"vulnerability_count"`
}

// Service is a network service exposed by a server.
type Service struct {
	Name         string `json:"name"`
	Port         int    `json:"port"`
	Version      string `json:"version"`
	IsVulnerable bool   `json:"is_vulnerable"`
}

// Endpoint is a simulated user workstation.
type Endpoint struct {
	IP                 string `json:"ip"`
	Name               string `json:"name"`
	OS                 string `json:"os"`
	User               string `json:"user"`
	VulnerabilityCount int    `json:"vulnerability_count"`
}

// ThreatActor is a simulated external adversary.
type ThreatActor struct {
	IP                  string   `json:"ip"`
	Name                string   `json:"name"`
	Sophistication      float64  `json:"sophistication"`
	PreferredTechniques []string `json:"preferred_techniques"`
}

// Infrastructure is the generated topology the synthesizer drives traffic
// through.
type Infrastructure struct {
	Servers      []Server      `json:"servers"`
	Endpoints    []Endpoint    `json:"endpoints"`
	ThreatActors []ThreatActor `json:"threat_actors"`
}

// TrafficStats aggregates the synthesizer's retained history.
type TrafficStats struct {
	TotalTraffic         int                `json:"total_traffic"`
	MaliciousCount       int                `json:"malicious_count"`
	MaliciousRatio       float64            `json:"malicious_ratio"`
	ProtocolDistribution map[string]float64 `json:"protocol_distribution"`
	SourceIPs            int                `json:"source_ips"`
	DestinationIPs       int                `json:"destination_ips"`
}

// StepEvent is one typed event collected by the simulation driver during a
// run step.
type StepEvent struct {
	Type      string         `json:"type"`
	Step      int            `json:"step"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// RunStatus represents the lifecycle state of a simulation run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusStopped   RunStatus = "stopped"
	RunStatusError     RunStatus = "error"
)

// RunMetrics are the final aggregates computed when a run ends.
type RunMetrics struct {
	TotalSteps             int            `json:"total_steps"`
	EventCounts            map[string]int `json:"event_counts"`
	TrafficVolume          int            `json:"traffic_volume"`
	ThreatsDetected        int            `json:"threats_detected"`
	DetectionRate          float64        `json:"detection_rate"`
	DefenseCoverage        float64        `json:"defense_coverage"`
	CountermeasureVariety  int            `json:"countermeasure_variety"`
	AttackStepsEncountered int            `json:"attack_steps_encountered"`

	// Populated only for scenarios that ran an attack simulation.
	AttackOutcome            string  `json:"attack_outcome,omitempty"`
	AttackSuccessProbability float64 `json:"attack_success_probability,omitempty"`
	AttackEvasionRate        float64 `json:"attack_evasion_rate,omitempty"`
}

// RunResult is the full record of one simulation run.
type RunResult struct {
	RunID      string      `json:"run_id"`
	ScenarioID string      `json:"scenario_id"`
	Status     RunStatus   `json:"status"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time,omitempty"`
	Steps      int         `json:"steps"`
	Events     []StepEvent `json:"events"`
	Metrics    *RunMetrics `json:"metrics,omitempty"`
	Error      string      `json:"error,omitempty"`
}
