// Package netsim synthesizes network traffic for training runs: a generated
// infrastructure topology, scheduled multi-step attack patterns, and a
// per-step mixture of benign and malicious records.
package netsim

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cybershield-labs/range-core/pkg/config"
	"github.com/cybershield-labs/range-core/pkg/logger"
	"github.com/cybershield-labs/range-core/pkg/models"
	"github.com/cybershield-labs/range-core/pkg/utils"
)

const (
	maxHistory      = 1000
	trafficVariance = 0.3

	internalNetPrefix = "192.168.1"
)

// Documentation-only address blocks (TEST-NET-1/2/3) used for external hosts.
var externalNetPrefixes = []string{"203.0.113", "198.51.100", "192.0.2"}

var protocols = []string{"tcp", "udp", "http", "https", "dns", "smtp", "ssh", "ftp"}

var commonPorts = map[string]int{
	"http":   80,
	"https":  443,
	"dns":    53,
	"smtp":   25,
	"ssh":    22,
	"ftp":    21,
	"telnet": 23,
}

// AttackPattern is one scheduled multi-step attack: a type, an intensity
// profile and a window of active steps.
type AttackPattern struct {
	Type      string
	StartStep int
	Duration  int
	Intensity float64
	Targets   []models.Server
	Source    models.ThreatActor

	// Type-specific parameters
	PortPattern   string
	TargetService string
	DataVolume    int
	AttackVector  string
}

// Active reports whether the pattern generates traffic at the given step.
func (a *AttackPattern) Active(step int) bool {
	return a.StartStep <= step && step < a.StartStep+a.Duration
}

// Synthesizer generates per-step synthetic traffic against a generated
// infrastructure. All stochastic choices draw from the injected source.
type Synthesizer struct {
	rng *utils.RandSource
	log *slog.Logger

	maliciousRatio float64
	trafficRate    int

	infra          models.Infrastructure
	attackPatterns []AttackPattern
	history        []models.TrafficRecord
}

// New creates a synthesizer with default parameters. Call Reset with
// scenario network params before generating traffic.
func New(rng *utils.RandSource) *Synthesizer {
	s := &Synthesizer{
		rng:            rng,
		log:            logger.With("component", "netsim"),
		maliciousRatio: 0.05,
		trafficRate:    5,
	}
	s.Reset(config.NetworkParams{})
	return s
}

// Reset regenerates infrastructure and attack patterns from the given
// parameters and clears the traffic history.
func (s *Synthesizer) Reset(params config.NetworkParams) {
	if params.MaliciousRatio > 0 {
		s.maliciousRatio = params.MaliciousRatio
	}
	if params.TrafficRate > 0 {
		s.trafficRate = params.TrafficRate
	}

	s.generateInfrastructure(params)
	s.generateAttackPatterns(params)
	s.history = nil

	s.log.Info("traffic synthesizer reset",
		"malicious_ratio", s.maliciousRatio,
		"servers", len(s.infra.Servers),
		"endpoints", len(s.infra.Endpoints),
		"attack_patterns", len(s.attackPatterns))
}

func (s *Synthesizer) generateInfrastructure(params config.NetworkParams) {
	serverCount := params.ServerCount
	if serverCount <= 0 {
		serverCount = 5
	}
	endpointCount := params.EndpointCount
	if endpointCount <= 0 {
		endpointCount = 10
	}
	actorCount := params.ThreatActorCount
	if actorCount <= 0 {
		actorCount = 3
	}

	s.infra.Servers = make([]models.Server, 0, serverCount)
	for i := 0; i < serverCount; i++ {
		s.infra.Servers = append(s.infra.Servers, models.Server{
			IP:                 internalIP(i + 1),
			Name:               fmt.Sprintf("server-%d", i+1),
			Services:           s.generateServices(),
			OS:                 utils.Choice(s.rng, []string{"Linux", "Windows Server"}),
			VulnerabilityCount: s.rng.Intn(4),
		})
	}

	s.infra.Endpoints = make([]models.Endpoint, 0, endpointCount)
	for i := 0; i < endpointCount; i++ {
		s.infra.Endpoints = append(s.infra.Endpoints, models.Endpoint{
			IP:                 internalIP(serverCount + i + 1),
			Name:               fmt.Sprintf("endpoint-%d", i+1),
			OS:                 utils.Choice(s.rng, []string{"Windows 10", "Windows 11", "MacOS", "Linux"}),
			User:               fmt.Sprintf("user-%d", i+1),
			VulnerabilityCount: s.rng.Intn(3),
		})
	}

	techniques := []string{
		"reconnaissance", "exploitation", "lateral_movement",
		"data_exfiltration", "persistence",
	}
	s.infra.ThreatActors = make([]models.ThreatActor, 0, actorCount)
	for i := 0; i < actorCount; i++ {
		s.infra.ThreatActors = append(s.infra.ThreatActors, models.ThreatActor{
			IP:                  s.externalIP(),
			Name:                fmt.Sprintf("threat-actor-%d", i+1),
			Sophistication:      s.rng.UniformFloat64(0.3, 0.9),
			PreferredTechniques: utils.Sample(s.rng, techniques, s.rng.IntRange(2, 4)),
		})
	}
}

func (s *Synthesizer) generateServices() []models.Service {
	names := make([]string, 0, len(commonPorts))
	for name := range commonPorts {
		names = append(names, name)
	}
	// Map iteration order is random; sort for seed-stable draws.
	sort.Strings(names)

	count := s.rng.IntRange(1, 4)
	selected := utils.Sample(s.rng, names, count)

	services := make([]models.Service, 0, len(selected))
	for _, name := range selected {
		services = append(services, models.Service{
			Name:         name,
			Port:         commonPorts[name],
			Version:      fmt.Sprintf("%d.%d.%d", s.rng.IntRange(1, 5), s.rng.Intn(10), s.rng.Intn(10)),
			IsVulnerable: s.rng.BernoulliBool(0.3),
		})
	}
	return services
}

func (s *Synthesizer) generateAttackPatterns(params config.NetworkParams) {
	s.attackPatterns = nil

	attackProbability := params.AttackProbability
	if attackProbability == 0 {
		attackProbability = 0.3
	}
	if !s.rng.BernoulliBool(attackProbability) {
		return
	}

	attackTypes := []string{"port_scan", "brute_force", "data_exfiltration", "ddos"}
	count := s.rng.IntRange(1, 3)
	selected := utils.Sample(s.rng, attackTypes, count)

	for _, attackType := range selected {
		pattern := AttackPattern{
			Type:      attackType,
			StartStep: 10 + s.rng.Intn(20),
			Source:    utils.Choice(s.rng, s.infra.ThreatActors),
		}

		switch attackType {
		case "port_scan":
			pattern.Duration = s.rng.IntRange(3, 8)
			pattern.Intensity = s.rng.UniformFloat64(0.4, 0.8)
			pattern.PortPattern = "sequential"
			// Scans sweep every server
			pattern.Targets = utils.Sample(s.rng, s.infra.Servers, len(s.infra.Servers))
		case "brute_force":
			pattern.Duration = s.rng.IntRange(5, 12)
			pattern.Intensity = s.rng.UniformFloat64(0.5, 0.9)
			pattern.TargetService = utils.Choice(s.rng, []string{"ssh", "ftp", "smtp"})
			pattern.Targets = []models.Server{utils.Choice(s.rng, s.infra.Servers)}
		case "data_exfiltration":
			pattern.Duration = s.rng.IntRange(2, 5)
			pattern.Intensity = s.rng.UniformFloat64(0.2, 0.6)
			pattern.DataVolume = s.rng.IntRange(1000, 50000)
			pattern.Targets = []models.Server{utils.Choice(s.rng, s.infra.Servers)}
		case "ddos":
			pattern.Duration = s.rng.IntRange(4, 10)
			pattern.Intensity = s.rng.UniformFloat64(0.7, 1.0)
			pattern.AttackVector = utils.Choice(s.rng, []string{"syn_flood", "udp_flood", "http_flood"})
			pattern.Targets = []models.Server{utils.Choice(s.rng, s.infra.Servers)}
		}

		s.attackPatterns = append(s.attackPatterns, pattern)
		s.log.Debug("generated attack pattern",
			"type", attackType,
			"start_step", pattern.StartStep,
			"duration", pattern.Duration,
			"targets", len(pattern.Targets))
	}
}

// GenerateTraffic produces all traffic records for one simulation step and
// appends them to the rolling history.
func (s *Synthesizer) GenerateTraffic(step int) []models.TrafficRecord {
	variance := s.rng.UniformFloat64(-trafficVariance, trafficVariance)
	baseAmount := s.trafficRate
	trafficAmount := int(float64(baseAmount) * (1 + variance))
	if trafficAmount < 1 {
		trafficAmount = 1
	}

	var activeAttacks []AttackPattern
	for _, a := range s.attackPatterns {
		if a.Active(step) {
			activeAttacks = append(activeAttacks, a)
			trafficAmount += int(float64(baseAmount) * a.Intensity * s.rng.UniformFloat64(0.8, 1.2))
		}
	}

	records := make([]models.TrafficRecord, 0, trafficAmount)

	// Normal traffic dips slightly while an attack is active
	normalAmount := trafficAmount
	if len(activeAttacks) > 0 {
		normalAmount = int(float64(normalAmount) * 0.8)
		if normalAmount < 1 {
			normalAmount = 1
		}
	}
	for i := 0; i < normalAmount; i++ {
		records = append(records, s.generateNormalTraffic())
	}

	for _, attack := range activeAttacks {
		records = append(records, s.generateAttackTraffic(attack, step)...)
	}

	// Background malicious traffic outside any scheduled attack
	if len(activeAttacks) == 0 && s.rng.BernoulliBool(s.maliciousRatio) {
		maliciousCount := int(float64(trafficAmount) * s.maliciousRatio)
		if maliciousCount < 1 {
			maliciousCount = 1
		}
		for i := 0; i < maliciousCount; i++ {
			records = append(records, s.generateMaliciousTraffic())
		}
	}

	s.history = append(s.history, records...)
	if len(s.history) > maxHistory {
		s.history = s.history[len(s.history)-maxHistory:]
	}

	return records
}

func (s *Synthesizer) generateNormalTraffic() models.TrafficRecord {
	var sourceIP, destIP string

	if s.rng.BernoulliBool(0.7) {
		// Internal to internal
		sourceIP = s.internalHostIP()
		destIP = s.internalHostIP()
		for destIP == sourceIP {
			destIP = s.internalHostIP()
		}
	} else if s.rng.BernoulliBool(0.5) {
		// External to internal
		sourceIP = s.externalIP()
		destIP = s.internalHostIP()
	} else {
		// Internal to external
		sourceIP = s.internalHostIP()
		destIP = s.externalIP()
	}

	protocol := utils.Choice(s.rng, protocols)
	port, ok := commonPorts[protocol]
	if !ok {
		port = s.rng.IntRange(1024, 65535)
	}

	var payloadSize int
	switch protocol {
	case "http", "https":
		payloadSize = s.rng.IntRange(200, 8000)
	case "dns":
		payloadSize = s.rng.IntRange(40, 300)
	default:
		payloadSize = s.rng.IntRange(50, 2000)
	}

	return models.TrafficRecord{
		SourceIP:      sourceIP,
		DestinationIP: destIP,
		Protocol:      protocol,
		Port:          port,
		PayloadSize:   payloadSize,
		Timestamp:     time.Now(),
		Patterns:      []string{},
	}
}

func (s *Synthesizer) generateMaliciousTraffic() models.TrafficRecord {
	actor := utils.Choice(s.rng, s.infra.ThreatActors)

	// Prefer a vulnerable service on a server target when one exists
	var destIP, protocol string
	var port int
	serverTarget := s.rng.Intn(len(s.infra.Servers)+len(s.infra.Endpoints)) < len(s.infra.Servers)
	if serverTarget {
		server := utils.Choice(s.rng, s.infra.Servers)
		destIP = server.IP
		var vulnerable []models.Service
		for _, svc := range server.Services {
			if svc.IsVulnerable {
				vulnerable = append(vulnerable, svc)
			}
		}
		if len(vulnerable) > 0 {
			svc := utils.Choice(s.rng, vulnerable)
			protocol = svc.Name
			port = svc.Port
		}
	} else {
		destIP = utils.Choice(s.rng, s.infra.Endpoints).IP
	}
	if protocol == "" {
		protocol = utils.Choice(s.rng, protocols)
		var ok bool
		if port, ok = commonPorts[protocol]; !ok {
			port = s.rng.IntRange(1024, 65535)
		}
	}

	pattern := utils.Choice(s.rng, []string{
		"command_and_control", "data_exfiltration", "exploit_attempt", "reconnaissance",
	})

	var payloadSize int
	switch pattern {
	case "data_exfiltration":
		payloadSize = s.rng.IntRange(5000, 50000)
	case "command_and_control":
		payloadSize = s.rng.IntRange(100, 1000)
	case "exploit_attempt":
		payloadSize = s.rng.IntRange(500, 3000)
	default: // reconnaissance
		payloadSize = s.rng.IntRange(50, 200)
	}

	return models.TrafficRecord{
		SourceIP:      actor.IP,
		DestinationIP: destIP,
		Protocol:      protocol,
		Port:          port,
		PayloadSize:   payloadSize,
		Timestamp:     time.Now(),
		IsMalicious:   true,
		Confidence:    s.rng.UniformFloat64(0.6, 0.95),
		Patterns:      []string{pattern},
	}
}

func (s *Synthesizer) generateAttackTraffic(attack AttackPattern, step int) []models.TrafficRecord {
	// Volume ramps up over the first 30% of the attack window, ramps down
	// over the last 30%, and is sustained in between.
	progress := float64(step-attack.StartStep) / float64(attack.Duration)
	var volumeFactor float64
	switch {
	case progress < 0.3:
		volumeFactor = progress * 3
	case progress > 0.7:
		volumeFactor = (1 - progress) * 3
	default:
		volumeFactor = 1.0
	}

	count := int(attack.Intensity * 10 * volumeFactor * s.rng.UniformFloat64(0.8, 1.2))
	if count < 1 {
		count = 1
	}

	switch attack.Type {
	case "port_scan":
		return s.generatePortScanTraffic(attack, count)
	case "brute_force":
		return s.generateBruteForceTraffic(attack, count)
	case "data_exfiltration":
		return s.generateExfiltrationTraffic(attack, count)
	case "ddos":
		return s.generateDDoSTraffic(attack, count)
	}
	return nil
}

func (s *Synthesizer) generatePortScanTraffic(attack AttackPattern, count int) []models.TrafficRecord {
	records := make([]models.TrafficRecord, 0, count)
	for i := 0; i < count; i++ {
		target := utils.Choice(s.rng, attack.Targets)

		var port int
		if attack.PortPattern == "sequential" {
			base := utils.Choice(s.rng, []int{1, 22, 80, 443, 1024, 8080})
			port = base + s.rng.Intn(21)
		} else {
			ports := []int{80, 443, 53, 25, 22, 21, 23}
			port = utils.Choice(s.rng, ports)
		}

		records = append(records, models.TrafficRecord{
			SourceIP:      attack.Source.IP,
			DestinationIP: target.IP,
			Protocol:      utils.Choice(s.rng, []string{"tcp", "udp"}),
			Port:          port,
			PayloadSize:   s.rng.IntRange(40, 100),
			Timestamp:     time.Now(),
			IsMalicious:   true,
			Confidence:    0.7 + s.rng.UniformFloat64(0, 0.2),
			Patterns:      []string{"port_scan", "reconnaissance"},
		})
	}
	return records
}

func (s *Synthesizer) generateBruteForceTraffic(attack AttackPattern, count int) []models.TrafficRecord {
	service := attack.TargetService
	if service == "" {
		service = "ssh"
	}
	port, ok := commonPorts[service]
	if !ok {
		port = 22
	}

	records := make([]models.TrafficRecord, 0, count)
	for i := 0; i < count; i++ {
		target := utils.Choice(s.rng, attack.Targets)
		records = append(records, models.TrafficRecord{
			SourceIP:      attack.Source.IP,
			DestinationIP: target.IP,
			Protocol:      service,
			Port:          port,
			PayloadSize:   s.rng.IntRange(200, 500),
			Timestamp:     time.Now(),
			IsMalicious:   true,
			Confidence:    0.8 + s.rng.UniformFloat64(0, 0.15),
			Patterns:      []string{"brute_force", "authentication_attack"},
		})
	}
	return records
}

func (s *Synthesizer) generateExfiltrationTraffic(attack AttackPattern, count int) []models.TrafficRecord {
	dataVolume := attack.DataVolume
	if dataVolume == 0 {
		dataVolume = 10000
	}
	volumePerRecord := float64(dataVolume) / float64(count)

	protocolPorts := map[string]int{"https": 443, "dns": 53, "smtp": 25}

	records := make([]models.TrafficRecord, 0, count)
	for i := 0; i < count; i++ {
		target := utils.Choice(s.rng, attack.Targets)
		protocol := utils.Choice(s.rng, []string{"https", "dns", "smtp"})
		records = append(records, models.TrafficRecord{
			// Exfiltration flows FROM the target TO the attacker
			SourceIP:      target.IP,
			DestinationIP: attack.Source.IP,
			Protocol:      protocol,
			Port:          protocolPorts[protocol],
			PayloadSize:   int(volumePerRecord * s.rng.UniformFloat64(0.8, 1.2)),
			Timestamp:     time.Now(),
			IsMalicious:   true,
			Confidence:    0.75 + s.rng.UniformFloat64(0, 0.2),
			Patterns:      []string{"data_exfiltration", "data_theft"},
		})
	}
	return records
}

func (s *Synthesizer) generateDDoSTraffic(attack AttackPattern, count int) []models.TrafficRecord {
	records := make([]models.TrafficRecord, 0, count)
	for i := 0; i < count; i++ {
		target := utils.Choice(s.rng, attack.Targets)

		var protocol string
		var port, payloadSize int
		switch attack.AttackVector {
		case "syn_flood":
			protocol = "tcp"
			port = utils.Choice(s.rng, []int{80, 443, 8080})
			payloadSize = s.rng.IntRange(40, 100)
		case "udp_flood":
			protocol = "udp"
			port = s.rng.IntRange(1, 65535)
			payloadSize = s.rng.IntRange(300, 1200)
		default: // http_flood
			protocol = utils.Choice(s.rng, []string{"http", "https"})
			port = 80
			if protocol == "https" {
				port = 443
			}
			payloadSize = s.rng.IntRange(800, 2000)
		}

		records = append(records, models.TrafficRecord{
			// Flood traffic comes from many distinct external sources
			SourceIP:      s.externalIP(),
			DestinationIP: target.IP,
			Protocol:      protocol,
			Port:          port,
			PayloadSize:   payloadSize,
			Timestamp:     time.Now(),
			IsMalicious:   true,
			Confidence:    0.85 + s.rng.UniformFloat64(0, 0.1),
			Patterns:      []string{"ddos", attack.AttackVector},
		})
	}
	return records
}

// Infrastructure returns the generated topology.
func (s *Synthesizer) Infrastructure() models.Infrastructure {
	return s.infra
}

// AttackPatterns returns the scheduled attack patterns for this run.
func (s *Synthesizer) AttackPatterns() []AttackPattern {
	return s.attackPatterns
}

// History returns the retained traffic history (most-recent 1000 records).
func (s *Synthesizer) History() []models.TrafficRecord {
	return s.history
}

// TrafficStats aggregates the retained history.
func (s *Synthesizer) TrafficStats() models.TrafficStats {
	stats := models.TrafficStats{
		ProtocolDistribution: map[string]float64{},
	}
	if len(s.history) == 0 {
		return stats
	}

	total := len(s.history)
	stats.TotalTraffic = total

	protocolCounts := map[string]int{}
	sources := map[string]struct{}{}
	destinations := map[string]struct{}{}
	for _, rec := range s.history {
		if rec.IsMalicious {
			stats.MaliciousCount++
		}
		protocolCounts[rec.Protocol]++
		sources[rec.SourceIP] = struct{}{}
		destinations[rec.DestinationIP] = struct{}{}
	}

	stats.MaliciousRatio = float64(stats.MaliciousCount) / float64(total)
	for protocol, count := range protocolCounts {
		stats.ProtocolDistribution[protocol] = float64(count) / float64(total)
	}
	stats.SourceIPs = len(sources)
	stats.DestinationIPs = len(destinations)

	return stats
}

func (s *Synthesizer) internalHostIP() string {
	hosts := len(s.infra.Servers) + len(s.infra.Endpoints)
	idx := s.rng.Intn(hosts)
	if idx < len(s.infra.Servers) {
		return s.infra.Servers[idx].IP
	}
	return s.infra.Endpoints[idx-len(s.infra.Servers)].IP
}

func (s *Synthesizer) externalIP() string {
	prefix := utils.Choice(s.rng, externalNetPrefixes)
	return fmt.Sprintf("%s.%d", prefix, s.rng.IntRange(1, 254))
}

func internalIP(host int) string {
	return fmt.Sprintf("%s.%d", internalNetPrefix, host)
}
