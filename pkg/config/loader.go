package config

import (
	"fmt"
	"os"
)

// LoadScenario loads and parses a scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	scenario, err := ParseScenarioYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}
	return scenario, nil
}

// applyScenarioDefaults fills unset fields with the standard defaults
func applyScenarioDefaults(s *Scenario) {
	if s.Type == "" {
		s.Type = "attack_simulation"
	}
	if s.Difficulty == "" {
		s.Difficulty = "medium"
	}
	if s.MaxSteps == 0 {
		s.MaxSteps = 100
	}
	if s.NetworkParams.ServerCount == 0 {
		s.NetworkParams.ServerCount = 5
	}
	if s.NetworkParams.EndpointCount == 0 {
		s.NetworkParams.EndpointCount = 10
	}
	if s.NetworkParams.ThreatActorCount == 0 {
		s.NetworkParams.ThreatActorCount = 3
	}
	if s.NetworkParams.MaliciousRatio == 0 {
		s.NetworkParams.MaliciousRatio = 0.05
	}
	if s.NetworkParams.TrafficRate == 0 {
		s.NetworkParams.TrafficRate = 5
	}
	if s.NetworkParams.AttackProbability == 0 {
		s.NetworkParams.AttackProbability = 0.3
	}
}

// validateScenario validates the scenario configuration
func validateScenario(s *Scenario) error {
	if s.ID == "" {
		return fmt.Errorf("scenario id cannot be empty")
	}
	if s.Name == "" {
		return fmt.Errorf("scenario name cannot be empty")
	}

	validTypes := map[string]bool{
		"attack_simulation": true,
		"training_session":  true,
	}
	if !validTypes[s.Type] {
		return fmt.Errorf("invalid scenario type: %s (must be attack_simulation or training_session)", s.Type)
	}

	validDifficulties := map[string]bool{
		"easy":   true,
		"medium": true,
		"hard":   true,
		"expert": true,
	}
	if !validDifficulties[s.Difficulty] {
		return fmt.Errorf("invalid difficulty: %s (must be easy, medium, hard, or expert)", s.Difficulty)
	}

	if s.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", s.MaxSteps)
	}

	np := s.NetworkParams
	if np.ServerCount <= 0 {
		return fmt.Errorf("network_params.server_count must be positive, got %d", np.ServerCount)
	}
	if np.EndpointCount <= 0 {
		return fmt.Errorf("network_params.endpoint_count must be positive, got %d", np.EndpointCount)
	}
	// 254 usable hosts in the internal /24
	if np.ServerCount+np.EndpointCount > 254 {
		return fmt.Errorf("server_count + endpoint_count cannot exceed 254 internal hosts")
	}
	if np.MaliciousRatio < 0 || np.MaliciousRatio > 1 {
		return fmt.Errorf("network_params.malicious_ratio must be between 0 and 1, got %f", np.MaliciousRatio)
	}
	if np.TrafficRate <= 0 {
		return fmt.Errorf("network_params.traffic_rate must be positive, got %d", np.TrafficRate)
	}
	if np.AttackProbability < 0 || np.AttackProbability > 1 {
		return fmt.Errorf("network_params.attack_probability must be between 0 and 1, got %f", np.AttackProbability)
	}

	ap := s.AttackParams
	if ap.AttackType == "" {
		return fmt.Errorf("attack_params.attack_type cannot be empty")
	}
	for i, ts := range ap.TargetSystems {
		if ts.Type != "server" && ts.Type != "endpoint" {
			return fmt.Errorf("target system %d: type must be server or endpoint, got %s", i, ts.Type)
		}
		for _, svc := range ts.Services {
			if svc.Name == "" {
				return fmt.Errorf("target system %d: service name cannot be empty", i)
			}
			if svc.Port <= 0 || svc.Port > 65535 {
				return fmt.Errorf("target system %d: service %s has invalid port %d", i, svc.Name, svc.Port)
			}
		}
	}
	for name, strength := range ap.DefenseMeasures {
		if strength < 0 || strength > 1 {
			return fmt.Errorf("defense measure %s: strength must be between 0 and 1, got %f", name, strength)
		}
	}

	return nil
}
