/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (viper: file + environment)
  2. Initialize the SQLite store
  3. Load leave-type, workflow, and employee fixtures (JSON files or
     built-in presets)
  4. Wire the resolver, state machine, ledger, and accrual engine
  5. Start the HTTP server and the background scheduler
  6. Shut down gracefully on SIGINT/SIGTERM

CONFIGURATION:
  Read from ./config.yaml (optional) and LEAVE_* environment variables:
    port            HTTP server port              (default: 8080)
    db              SQLite database path          (default: leave.db)
    region          Region for preset policies    (default: "")
    fixtures.dir    Directory with policies.json,
                    workflows.json, employees.json (optional)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server

  # Run with in-memory database
  LEAVE_DB=":memory:" ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background jobs
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	cfg := loadConfig()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store, err := sqlite.New(cfg.GetString("db"))
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	policies, workflows, directory, err := loadFixtures(cfg)
	if err != nil {
		logger.Fatal("failed to load fixtures", zap.Error(err))
	}

	// Wire the engine.
	balances := &ledger.BalanceLedger{
		Store:     store,
		Policies:  policies,
		Directory: directory,
	}
	resolver := &approval.Resolver{
		Workflows: workflows,
		Directory: directory,
	}
	machine := &approval.StateMachine{
		Requests:  store,
		Ledger:    balances,
		Directory: directory,
		Resolver:  resolver,
		Notifier:  logNotifier(logger),
	}
	service := &approval.Service{
		Policies:  policies,
		Directory: directory,
		Resolver:  resolver,
		Machine:   machine,
		Requests:  store,
		Overlap:   &leave.OverlapDetector{},
	}
	engine := &accrual.Engine{
		Policies:  policies,
		Directory: directory,
		Ledger:    balances,
		Notifier:  logNotifier(logger),
	}

	handler := &api.Handler{
		Service:  service,
		Machine:  machine,
		Ledger:   balances,
		Accrual:  engine,
		Requests: store,
	}
	router := api.NewRouter(handler)

	scheduler := api.NewScheduler(machine, engine, logger)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.GetInt("port")),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func loadConfig() *viper.Viper {
	v := viper.New()
	v.SetDefault("port", 8080)
	v.SetDefault("db", "leave.db")
	v.SetDefault("region", "")
	v.SetDefault("fixtures.dir", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("LEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env and defaults suffice.
	_ = v.ReadInConfig()
	return v
}

// loadFixtures builds the configuration stores from JSON files when a
// fixtures dir is set, falling back to the built-in presets.
func loadFixtures(cfg *viper.Viper) (leave.PolicyStore, approval.WorkflowStore, leave.Directory, error) {
	dir := cfg.GetString("fixtures.dir")
	region := cfg.GetString("region")

	if dir == "" {
		policies := factory.NewPolicySet(factory.StandardPolicies(region)...)
		workflows := factory.NewWorkflowSet(factory.StandardWorkflows()...)
		directory := factory.NewStaticDirectory()
		return policies, workflows, directory, nil
	}

	policyJSON, err := os.ReadFile(filepath.Join(dir, "policies.json"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading policies fixture: %w", err)
	}
	configs, err := factory.ParsePolicies(string(policyJSON))
	if err != nil {
		return nil, nil, nil, err
	}

	workflowJSON, err := os.ReadFile(filepath.Join(dir, "workflows.json"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading workflows fixture: %w", err)
	}
	workflowConfigs, err := factory.ParseWorkflows(string(workflowJSON))
	if err != nil {
		return nil, nil, nil, err
	}

	employeeJSON, err := os.ReadFile(filepath.Join(dir, "employees.json"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading employees fixture: %w", err)
	}
	employees, err := factory.ParseEmployees(string(employeeJSON))
	if err != nil {
		return nil, nil, nil, err
	}

	return factory.NewPolicySet(configs...),
		factory.NewWorkflowSet(workflowConfigs...),
		factory.NewStaticDirectory(employees...),
		nil
}

// logNotifier logs every domain event; a real deployment would fan out to
// email or chat from here.
func logNotifier(logger *zap.Logger) leave.Notifier {
	return leave.NotifierFunc(func(e leave.Event) {
		logger.Info("event",
			zap.String("kind", string(e.Kind)),
			zap.String("employee", string(e.EmployeeID)),
			zap.String("request", string(e.RequestID)),
			zap.String("leave_type", string(e.LeaveType)))
	})
}
