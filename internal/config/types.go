package config

// Config is the top-level windscout configuration parsed from YAML.
type Config struct {
	Server  Server          `yaml:"server"`
	Store   Store           `yaml:"store"`
	Routing Routing         `yaml:"routing"`
	Invoker Invoker         `yaml:"invoker"`
	Units   map[string]Unit `yaml:"units"`
	Report  Report          `yaml:"report"`
	Queue   Queue           `yaml:"queue"`
}

// Server configures the HTTP API.
type Server struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// Store selects where project contexts and thought steps live: "file"
// keeps everything under a root directory, "postgres" uses the
// database named by DSN.
type Store struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	DSN     string `yaml:"dsn"`
}

// Routing tunes the intent classifier's dispatch behavior.
type Routing struct {
	DefaultCapability string `yaml:"default_capability"`
	MinConfidence     int    `yaml:"min_confidence"`
}

// Invoker sets the retry budget for compute unit calls.
type Invoker struct {
	MaxAttempts       int    `yaml:"max_attempts"`
	PerAttemptTimeout string `yaml:"per_attempt_timeout"`
	BaseDelay         string `yaml:"base_delay"`
}

// Unit declares one compute unit: the built-in local implementation or
// a remote HTTP worker.
type Unit struct {
	Kind    string `yaml:"kind"`
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

// Report configures report generation.
type Report struct {
	TemplateDir string `yaml:"template_dir"`
}

// Queue tunes the background ask-queue workers.
type Queue struct {
	Workers      int    `yaml:"workers"`
	PollInterval string `yaml:"poll_interval"`
}
