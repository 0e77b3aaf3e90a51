package config

// Scenario represents a complete training scenario
type Scenario struct {
	ID                 string        `yaml:"id"`
	Name               string        `yaml:"name"`
	Description        string        `yaml:"description,omitempty"`
	Type               string        `yaml:"type"`       // attack_simulation, training_session
	Difficulty         string        `yaml:"difficulty"` // easy, medium, hard, expert
	MaxSteps           int           `yaml:"max_steps"`
	NetworkParams      NetworkParams `yaml:"network_params"`
	AttackParams       AttackParams  `yaml:"attack_params"`
	LearningObjectives []string      `yaml:"learning_objectives,omitempty"`
	Seed               int64         `yaml:"seed,omitempty"` // 0 derives the seed from the wall clock
}

// NetworkParams shape the synthesized infrastructure and traffic mix
type NetworkParams struct {
	ServerCount       int     `yaml:"server_count"`
	EndpointCount     int     `yaml:"endpoint_count"`
	ThreatActorCount  int     `yaml:"threat_actor_count,omitempty"`
	MaliciousRatio    float64 `yaml:"malicious_ratio"`
	TrafficRate       int     `yaml:"traffic_rate"`
	AttackProbability float64 `yaml:"attack_probability"`
}

// AttackParams configure the simulated adversary
type AttackParams struct {
	AttackType      string             `yaml:"attack_type"`
	TargetSystems   []TargetSystem     `yaml:"target_systems"`
	DefenseMeasures map[string]float64 `yaml:"defense_measures"` // measure name -> strength in [0,1]
}

// TargetSystem describes one system in scope for offensive operations
type TargetSystem struct {
	Type     string          `yaml:"type"` // server, endpoint
	OS       string          `yaml:"os,omitempty"`
	Services []TargetService `yaml:"services,omitempty"`
}

// TargetService is a network service exposed by a target system
type TargetService struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}
