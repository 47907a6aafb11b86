package cli

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aerostat-labs/windscout/internal/agent"
	"github.com/aerostat-labs/windscout/internal/config"
	"github.com/aerostat-labs/windscout/internal/db"
	"github.com/aerostat-labs/windscout/internal/intent"
	"github.com/aerostat-labs/windscout/internal/invoke"
	"github.com/aerostat-labs/windscout/internal/project"
	"github.com/aerostat-labs/windscout/internal/thought"
	"github.com/aerostat-labs/windscout/internal/unit"
	"github.com/aerostat-labs/windscout/internal/workflow"
)

// loadConfigRaw loads the configured or default config without
// validating it. .env is loaded first so WINDSCOUT_DB_DSN can live
// there.
func loadConfigRaw() (*config.Config, error) {
	_ = godotenv.Load()
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

// loadConfig loads the config and rejects it when validation fails.
func loadConfig() (*config.Config, error) {
	cfg, err := loadConfigRaw()
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return cfg, nil
}

// openDB connects to postgres and brings the schema current.
func openDB(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if cfg.Store.DSN == "" {
		return nil, fmt.Errorf("no database DSN configured: set store.dsn or WINDSCOUT_DB_DSN")
	}
	d, err := db.Open(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := d.Migrate(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// appEnv is the wired dependency graph behind one CLI invocation.
type appEnv struct {
	cfg      *config.Config
	store    project.Store
	recorder thought.Recorder
	orch     *workflow.Orchestrator
	router   *agent.Router
	db       *db.DB // nil on the file backend
	cleanup  func()
}

// buildApp wires the full request path: store, recorder, compute
// units, invoker, orchestrator, router. cacheSize > 0 puts an LRU read
// cache in front of the project store.
func buildApp(ctx context.Context, cacheSize int) (*appEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	env := &appEnv{cfg: cfg, cleanup: func() {}}

	var stageLog project.StageLogWriter
	switch cfg.Store.Backend {
	case "postgres":
		d, err := openDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		env.db = d
		env.cleanup = func() { d.Close() }
		env.store = project.NewPGStore(d.Conn())
		env.recorder = thought.NewDBRecorder(d.Conn())
	default:
		fs, err := project.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		env.store = fs
		env.recorder = thought.NewMemoryRecorder()
		stageLog = fs
	}

	if cacheSize > 0 {
		cached, err := project.NewCachedStore(env.store, cacheSize)
		if err != nil {
			env.cleanup()
			return nil, err
		}
		env.store = cached
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		env.cleanup()
		return nil, err
	}

	perAttempt, err := config.Duration(cfg.Invoker.PerAttemptTimeout, 30*time.Second)
	if err != nil {
		env.cleanup()
		return nil, fmt.Errorf("invoker.per_attempt_timeout: %w", err)
	}
	baseDelay, err := config.Duration(cfg.Invoker.BaseDelay, 500*time.Millisecond)
	if err != nil {
		env.cleanup()
		return nil, fmt.Errorf("invoker.base_delay: %w", err)
	}
	inv := invoke.New(registry, invoke.Config{
		MaxAttempts:       cfg.Invoker.MaxAttempts,
		PerAttemptTimeout: perAttempt,
		BaseDelay:         baseDelay,
	})

	orch := workflow.New(env.store, inv, env.recorder)
	if env.db != nil {
		orch.SetEventLog(env.db)
	}
	if stageLog != nil {
		orch.SetStageLog(stageLog)
	}

	classifier := intent.MustClassifier(intent.DefaultGroups(), cfg.Routing.DefaultCapability)
	router := agent.NewRouter(classifier, env.recorder, agent.DefaultHandlers(orch, inv, env.store)...)
	router.SetMinConfidence(cfg.Routing.MinConfidence)

	env.orch = orch
	env.router = router
	return env, nil
}

// buildRegistry turns the units section into a compute-unit registry.
func buildRegistry(cfg *config.Config) (*unit.Registry, error) {
	reg := unit.NewRegistry()
	for name, uc := range cfg.Units {
		switch uc.Kind {
		case "local":
			u, err := localUnit(name, cfg)
			if err != nil {
				return nil, err
			}
			reg.Register(u)
		case "http":
			timeout, err := config.Duration(uc.Timeout, 30*time.Second)
			if err != nil {
				return nil, fmt.Errorf("unit %s: %w", name, err)
			}
			reg.Register(unit.NewHTTPUnit(name, uc.URL, timeout))
		default:
			return nil, fmt.Errorf("unit %s: unrecognized kind %q", name, uc.Kind)
		}
	}
	return reg, nil
}

func localUnit(name string, cfg *config.Config) (unit.Unit, error) {
	switch name {
	case "survey":
		return unit.SurveyUnit{}, nil
	case "layout":
		return unit.LayoutUnit{}, nil
	case "simulation":
		return unit.SimulationUnit{}, nil
	case "report":
		return unit.ReportUnit{TemplateDir: cfg.Report.TemplateDir}, nil
	case "windrose":
		return unit.WindRoseUnit{}, nil
	}
	return nil, fmt.Errorf("no built-in implementation for unit %q", name)
}

var (
	dsnURLPassRe = regexp.MustCompile(`(://[^:/@]+):[^@]+@`)
	dsnKVPassRe  = regexp.MustCompile(`(password=)\S+`)
)

// maskDSN hides credentials in a connection string before display.
func maskDSN(dsn string) string {
	dsn = dsnURLPassRe.ReplaceAllString(dsn, "$1:***@")
	return dsnKVPassRe.ReplaceAllString(dsn, "$1***")
}
