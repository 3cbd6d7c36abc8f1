// Package config loads environment-backed settings shared by the fleet services.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// ScalePreset holds the robot/job counts for a named scenario scale.
type ScalePreset struct {
	Robots int
	Jobs   int
}

// DefaultScaleMap returns the built-in scale presets.
func DefaultScaleMap() map[string]ScalePreset {
	return map[string]ScalePreset{
		"mini":  {Robots: 5, Jobs: 5},
		"small": {Robots: 5, Jobs: 25},
		"demo":  {Robots: 10, Jobs: 50},
		"large": {Robots: 20, Jobs: 100},
	}
}

// Settings is the full configuration surface for all services. Each binary
// reads the subset it needs.
type Settings struct {
	RabbitHost string
	RabbitPort int
	RabbitUser string
	RabbitPass string
	Exchange   string

	FleetScale string
	FleetSeed  int64
	FleetMode  string

	SimTickHz             int
	TelemetryHz           int
	WorldSize             int
	MaxSimSeconds         int
	ServiceTimeS          int
	ChargeRate            float64
	ChargeResumeThreshold float64
	RobotSpeedMin         float64
	RobotSpeedMax         float64

	GAReplanIntervalS int
	BatteryThreshold  float64
	OptimizerURL      string

	OptimizerPort  int
	PopulationSize int
	Generations    int
	EliteSize      int
	MutationRate   float64
	CrossoverRate  float64

	// ScaleMap carries the presets, rewritten globally when both
	// FLEET_ROBOTS and FLEET_JOBS are set.
	ScaleMap map[string]ScalePreset
}

// Default returns settings with every default applied and no environment read.
func Default() Settings {
	return Settings{
		RabbitHost:            "rabbitmq",
		RabbitPort:            5672,
		RabbitUser:            "amr",
		RabbitPass:            "amrpass",
		Exchange:              "amr.events",
		FleetScale:            "demo",
		FleetSeed:             42,
		FleetMode:             "baseline",
		SimTickHz:             5,
		TelemetryHz:           1,
		WorldSize:             100,
		MaxSimSeconds:         3600,
		ServiceTimeS:          5,
		ChargeRate:            5,
		ChargeResumeThreshold: 20,
		RobotSpeedMin:         1.0,
		RobotSpeedMax:         2.0,
		GAReplanIntervalS:     0,
		BatteryThreshold:      20,
		OptimizerURL:          "http://optimizer-service:8002",
		OptimizerPort:         8002,
		PopulationSize:        64,
		Generations:           80,
		EliteSize:             4,
		MutationRate:          0.10,
		CrossoverRate:         0.90,
		ScaleMap:              DefaultScaleMap(),
	}
}

// Load reads settings from the environment on top of the defaults.
func Load() (Settings, error) {
	s := Default()

	s.RabbitHost = getenv("RABBITMQ_HOST", s.RabbitHost)
	s.RabbitUser = getenv("RABBITMQ_USER", s.RabbitUser)
	s.RabbitPass = getenv("RABBITMQ_PASS", s.RabbitPass)
	s.FleetScale = getenv("FLEET_SCALE", s.FleetScale)
	s.FleetMode = getenv("FLEET_MODE", s.FleetMode)
	s.OptimizerURL = getenv("OPTIMIZER_URL", s.OptimizerURL)

	var err error
	if s.RabbitPort, err = atoi("RABBITMQ_PORT", s.RabbitPort); err != nil {
		return s, err
	}
	seed, err := atoi("FLEET_SEED", int(s.FleetSeed))
	if err != nil {
		return s, err
	}
	s.FleetSeed = int64(seed)
	if s.SimTickHz, err = atoi("SIM_TICK_HZ", s.SimTickHz); err != nil {
		return s, err
	}
	if s.TelemetryHz, err = atoi("TELEMETRY_HZ", s.TelemetryHz); err != nil {
		return s, err
	}
	if s.WorldSize, err = atoi("WORLD_SIZE", s.WorldSize); err != nil {
		return s, err
	}
	if s.MaxSimSeconds, err = atoi("MAX_SIM_SECONDS", s.MaxSimSeconds); err != nil {
		return s, err
	}
	if s.ServiceTimeS, err = atoi("SERVICE_TIME_S", s.ServiceTimeS); err != nil {
		return s, err
	}
	if s.ChargeRate, err = atof("CHARGE_RATE", s.ChargeRate); err != nil {
		return s, err
	}
	if s.ChargeResumeThreshold, err = atof("CHARGE_RESUME_THRESHOLD", s.ChargeResumeThreshold); err != nil {
		return s, err
	}
	if s.RobotSpeedMin, err = atof("ROBOT_SPEED_MIN", s.RobotSpeedMin); err != nil {
		return s, err
	}
	if s.RobotSpeedMax, err = atof("ROBOT_SPEED_MAX", s.RobotSpeedMax); err != nil {
		return s, err
	}
	if s.GAReplanIntervalS, err = atoi("GA_REPLAN_INTERVAL_S", s.GAReplanIntervalS); err != nil {
		return s, err
	}
	if s.BatteryThreshold, err = atof("BATTERY_THRESHOLD", s.BatteryThreshold); err != nil {
		return s, err
	}
	if s.OptimizerPort, err = atoi("OPTIMIZER_PORT", s.OptimizerPort); err != nil {
		return s, err
	}
	if s.PopulationSize, err = atoi("GA_POPULATION_SIZE", s.PopulationSize); err != nil {
		return s, err
	}
	if s.Generations, err = atoi("GA_GENERATIONS", s.Generations); err != nil {
		return s, err
	}
	if s.EliteSize, err = atoi("GA_ELITE_SIZE", s.EliteSize); err != nil {
		return s, err
	}
	if s.MutationRate, err = atof("GA_MUTATION_RATE", s.MutationRate); err != nil {
		return s, err
	}
	if s.CrossoverRate, err = atof("GA_CROSSOVER_RATE", s.CrossoverRate); err != nil {
		return s, err
	}

	robots, err := atoi("FLEET_ROBOTS", 0)
	if err != nil {
		return s, err
	}
	jobs, err := atoi("FLEET_JOBS", 0)
	if err != nil {
		return s, err
	}
	// A joint override rewrites every preset so all services agree on the
	// scenario size regardless of the selected scale.
	if robots > 0 && jobs > 0 {
		for key := range s.ScaleMap {
			s.ScaleMap[key] = ScalePreset{Robots: robots, Jobs: jobs}
		}
	}

	if _, ok := s.ScaleMap[s.FleetScale]; !ok {
		return s, fmt.Errorf("invalid scale: %s", s.FleetScale)
	}
	return s, nil
}

// RabbitURL builds the AMQP connection URL.
func (s Settings) RabbitURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", s.RabbitUser, s.RabbitPass, s.RabbitHost, s.RabbitPort)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func atoi(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func atof(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
