package config

import (
	"strings"
	"testing"
)

const validScenarioYAML = `
id: basic_reconnaissance
name: Basic Reconnaissance
description: Reconnaissance activities against network infrastructure
type: attack_simulation
difficulty: easy
max_steps: 50
network_params:
  server_count: 5
  endpoint_count: 10
  malicious_ratio: 0.05
  traffic_rate: 3
  attack_probability: 1.0
attack_params:
  attack_type: reconnaissance
  target_systems:
    - type: server
      os: Linux
      services:
        - name: http
          port: 80
        - name: ssh
          port: 22
  defense_measures:
    firewall_rules: 0.5
    ids_configuration: 0.3
learning_objectives:
  - Identify reconnaissance patterns
seed: 42
`

func TestParseScenarioYAML(t *testing.T) {
	scenario, err := ParseScenarioYAMLString(validScenarioYAML)
	if err != nil {
		t.Fatalf("Failed to parse valid scenario: %v", err)
	}

	if scenario.ID != "basic_reconnaissance" {
		t.Errorf("Expected id basic_reconnaissance, got %s", scenario.ID)
	}
	if scenario.Type != "attack_simulation" {
		t.Errorf("Expected type attack_simulation, got %s", scenario.Type)
	}
	if scenario.MaxSteps != 50 {
		t.Errorf("Expected max_steps 50, got %d", scenario.MaxSteps)
	}
	if scenario.NetworkParams.TrafficRate != 3 {
		t.Errorf("Expected traffic_rate 3, got %d", scenario.NetworkParams.TrafficRate)
	}
	if scenario.AttackParams.AttackType != "reconnaissance" {
		t.Errorf("Expected attack_type reconnaissance, got %s", scenario.AttackParams.AttackType)
	}
	if len(scenario.AttackParams.TargetSystems) != 1 {
		t.Fatalf("Expected 1 target system, got %d", len(scenario.AttackParams.TargetSystems))
	}
	if got := scenario.AttackParams.TargetSystems[0].Services[1].Port; got != 22 {
		t.Errorf("Expected ssh port 22, got %d", got)
	}
	if scenario.AttackParams.DefenseMeasures["firewall_rules"] != 0.5 {
		t.Errorf("Expected firewall_rules strength 0.5, got %f", scenario.AttackParams.DefenseMeasures["firewall_rules"])
	}
	if scenario.Seed != 42 {
		t.Errorf("Expected seed 42, got %d", scenario.Seed)
	}
}

func TestParseScenarioDefaults(t *testing.T) {
	yaml := `
id: minimal
name: Minimal Scenario
attack_params:
  attack_type: ransomware
`
	scenario, err := ParseScenarioYAMLString(yaml)
	if err != nil {
		t.Fatalf("Failed to parse minimal scenario: %v", err)
	}

	if scenario.Type != "attack_simulation" {
		t.Errorf("Expected default type attack_simulation, got %s", scenario.Type)
	}
	if scenario.Difficulty != "medium" {
		t.Errorf("Expected default difficulty medium, got %s", scenario.Difficulty)
	}
	if scenario.MaxSteps != 100 {
		t.Errorf("Expected default max_steps 100, got %d", scenario.MaxSteps)
	}
	if scenario.NetworkParams.ServerCount != 5 {
		t.Errorf("Expected default server_count 5, got %d", scenario.NetworkParams.ServerCount)
	}
	if scenario.NetworkParams.MaliciousRatio != 0.05 {
		t.Errorf("Expected default malicious_ratio 0.05, got %f", scenario.NetworkParams.MaliciousRatio)
	}
	if scenario.NetworkParams.AttackProbability != 0.3 {
		t.Errorf("Expected default attack_probability 0.3, got %f", scenario.NetworkParams.AttackProbability)
	}
	if scenario.Seed != 0 {
		t.Errorf("Expected default seed 0, got %d", scenario.Seed)
	}
}

func TestParseScenarioInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		errPart string
	}{
		{
			"missing id",
			`{name: X, attack_params: {attack_type: ddos}}`,
			"id cannot be empty",
		},
		{
			"missing name",
			`{id: x, attack_params: {attack_type: ddos}}`,
			"name cannot be empty",
		},
		{
			"bad type",
			`{id: x, name: X, type: quiz, attack_params: {attack_type: ddos}}`,
			"invalid scenario type",
		},
		{
			"bad difficulty",
			`{id: x, name: X, difficulty: impossible, attack_params: {attack_type: ddos}}`,
			"invalid difficulty",
		},
		{
			"negative max_steps",
			`{id: x, name: X, max_steps: -5, attack_params: {attack_type: ddos}}`,
			"max_steps must be positive",
		},
		{
			"missing attack_type",
			`{id: x, name: X}`,
			"attack_type cannot be empty",
		},
		{
			"malicious_ratio out of range",
			`{id: x, name: X, network_params: {malicious_ratio: 1.5}, attack_params: {attack_type: ddos}}`,
			"malicious_ratio must be between 0 and 1",
		},
		{
			"bad target system type",
			`{id: x, name: X, attack_params: {attack_type: ddos, target_systems: [{type: router}]}}`,
			"type must be server or endpoint",
		},
		{
			"defense strength out of range",
			`{id: x, name: X, attack_params: {attack_type: ddos, defense_measures: {firewall_rules: 2.0}}}`,
			"strength must be between 0 and 1",
		},
		{
			"not yaml",
			`{{{`,
			"failed to parse scenario yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenarioYAMLString(tt.yaml)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("Expected error containing %q, got: %v", tt.errPart, err)
			}
		})
	}
}
