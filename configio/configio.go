// Package configio loads SimCash's two layers of configuration:
// ServiceConfig, the ambient operational settings a running daemon or
// CLI reads from the environment (broker address, listen ports, log
// level), and a scenario document, the structured simulation
// definition (agents, policies, rates, scripted events) read from
// YAML or JSON into an engine.Config.
package configio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/paynet/simcash/engine"
)

// ServiceConfig holds every environment-driven operational setting a
// SimCash driver binary needs. It has no opinion on simulation
// content; that lives in a scenario document loaded separately.
type ServiceConfig struct {
	// Kafka
	KafkaBrokerAddr  string
	KafkaTopic       string
	KafkaEnabled     bool

	// Dashboard WebSocket server
	DashboardAddr string

	// Health/readiness server
	HealthAddr string

	// Logging
	LogLevel string
	Env      string

	// Default scenario document path, used when a driver isn't given
	// one explicitly on the command line.
	ScenarioPath string
}

// Load reads ServiceConfig from environment variables and an optional
// .env file. Every field has a workable default, so a driver can run
// against a local Kafka broker and stdout logging with zero
// environment configuration.
func Load() *ServiceConfig {
	_ = godotenv.Load()

	return &ServiceConfig{
		KafkaBrokerAddr: getEnv("SIMCASH_KAFKA_BROKER", "localhost:9092"),
		KafkaTopic:      getEnv("SIMCASH_KAFKA_TOPIC", "simcash-events"),
		KafkaEnabled:    getEnvBool("SIMCASH_KAFKA_ENABLED", false),
		DashboardAddr:   getEnv("SIMCASH_DASHBOARD_ADDR", ":8090"),
		HealthAddr:      getEnv("SIMCASH_HEALTH_ADDR", ":8091"),
		LogLevel:        getEnv("SIMCASH_LOG_LEVEL", "info"),
		Env:             getEnv("ENV", "development"),
		ScenarioPath:    getEnv("SIMCASH_SCENARIO_PATH", "scenario.yaml"),
	}
}

// IsDevelopment reports whether Env is the development environment.
func (c *ServiceConfig) IsDevelopment() bool { return c.Env == "development" }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// LoadScenarioYAML reads a scenario document in YAML form from path
// and decodes it directly into an engine.Config. It does not call
// Config's own validation; callers should pass the result to
// engine.New, which validates as part of construction.
func LoadScenarioYAML(path string) (engine.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Config{}, fmt.Errorf("configio: read scenario %s: %w", path, err)
	}
	var cfg engine.Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return engine.Config{}, fmt.Errorf("configio: parse scenario YAML %s: %w", path, err)
	}
	return cfg, nil
}

// LoadScenarioJSON reads a scenario document in JSON form from path.
// JSON is supported alongside YAML so a scenario produced by
// DumpScenarioJSON round-trips without lossy conversion through YAML.
func LoadScenarioJSON(path string) (engine.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Config{}, fmt.Errorf("configio: read scenario %s: %w", path, err)
	}
	var cfg engine.Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return engine.Config{}, fmt.Errorf("configio: parse scenario JSON %s: %w", path, err)
	}
	return cfg, nil
}

// DumpScenarioJSON serializes cfg as indented JSON and writes it to
// path, the inverse of LoadScenarioJSON. Used to persist a
// programmatically-built engine.Config (e.g. one assembled by a test
// harness or a scenario generator) for later replay.
func DumpScenarioJSON(cfg engine.Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("configio: marshal scenario: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("configio: write scenario %s: %w", path, err)
	}
	return nil
}
