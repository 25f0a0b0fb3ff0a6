// Package handlers implements the business logic for CLI commands.
//
// Handlers are framework-agnostic and can be tested independently of the
// CLI framework. Collaborators are created through package-level factory
// variables that tests replace.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/wangkuntian/pipeman/internal/command"
	"github.com/wangkuntian/pipeman/internal/config"
	"github.com/wangkuntian/pipeman/internal/logging"
	"github.com/wangkuntian/pipeman/internal/metrics"
	"github.com/wangkuntian/pipeman/internal/orchestration"
	"github.com/wangkuntian/pipeman/internal/platform/openstack"
	"github.com/wangkuntian/pipeman/internal/platform/s3"
	"github.com/wangkuntian/pipeman/internal/provisioning"
	"github.com/wangkuntian/pipeman/internal/telemetry"
)

// DeployOptions are the flags of the deploy command.
type DeployOptions struct {
	Arch       string
	Mode       string
	ConfigFile string
	Hosts      []string
	Quiet      bool
	ResumeFile string
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadDotenv loads a .env file from the working directory if present.
	loadDotenv = func() error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}

	// newCloud authenticates against OpenStack.
	newCloud = func(ctx context.Context, cfg *config.Config, timeouts *config.Timeouts, m *metrics.Recorder, log logr.Logger) (provisioning.CloudAPI, error) {
		return openstack.New(ctx, &cfg.OpenStack,
			openstack.WithTimeouts(timeouts),
			openstack.WithMetrics(m),
			openstack.WithLogger(log.WithName("openstack")),
		)
	}

	// newConnector opens SSH sessions.
	newConnector = func(timeouts *config.Timeouts, commands *command.Registry, log logr.Logger) provisioning.Connector {
		return &provisioning.SSHConnector{Timeouts: timeouts, Commands: commands, Logger: log.WithName("ssh")}
	}

	// newArchiver builds the S3 archiver; nil when archival is off.
	newArchiver = func(cfg config.ArchiveConfig, runID string, log logr.Logger) (orchestration.Archiver, error) {
		a, err := s3.NewArchiver(cfg, runID, log.WithName("archive"))
		if err != nil || a == nil {
			return nil, err
		}
		return a, nil
	}

	// newRunID returns the id attached to every log line and span of a run.
	newRunID = uuid.NewString

	// now is the clock used for resource name timestamps.
	now = time.Now

	// logOptions is extended by tests to capture console output.
	logOptions = func(opts logging.Options) logging.Options { return opts }
)

// Deploy runs the deployment pipeline described by opts.
//
// The workflow is:
//  1. Load .env, the configuration file and the timeouts
//  2. Set up logging, metrics and tracing for the run
//  3. Authenticate against OpenStack
//  4. Build the deployment spec, seeded from --resume when given
//  5. Run the orchestrator until the deploy stage completes
//  6. Write the metrics textfile
func Deploy(ctx context.Context, opts DeployOptions) (err error) {
	arch, err := config.ParseArch(opts.Arch)
	if err != nil {
		return err
	}
	mode, err := config.ParseMode(opts.Mode)
	if err != nil {
		return err
	}

	if err := loadDotenv(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	path, err := config.ResolvePath(opts.ConfigFile)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	timeouts := config.LoadTimeouts()

	runID := newRunID()
	logger, err := logging.New(logOptions(logging.Options{
		File:  cfg.LogFile(),
		Quiet: opts.Quiet,
		Debug: cfg.Log.Debug,
	}))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.WithValues("run_id", runID)

	defer func() {
		if err != nil {
			log.Error(err, "deployment failed")
		}
	}()

	log.Info("starting deployment", "arch", arch, "mode", mode, "config", path)

	recorder := metrics.New()
	defer func() {
		if werr := recorder.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			log.Error(werr, "failed to write metrics")
		}
	}()

	tp, err := telemetry.Init(telemetry.Options{
		Enabled: cfg.Tracing.Enabled,
		File:    cfg.Tracing.File,
		RunID:   runID,
	})
	if err != nil {
		return err
	}
	defer func() {
		if serr := tp.Shutdown(context.WithoutCancel(ctx)); serr != nil {
			log.Error(serr, "failed to flush traces")
		}
	}()

	spec, err := orchestration.NewSpec(cfg, arch, mode, opts.Hosts, now())
	if err != nil {
		return err
	}
	if opts.ResumeFile != "" {
		st, err := orchestration.LoadState(opts.ResumeFile)
		if err != nil {
			return err
		}
		if err := spec.Resume(st); err != nil {
			return err
		}
		log.Info("resuming", "state", opts.ResumeFile, "stage", st.Stage)
	}

	cloud, err := newCloud(ctx, cfg, timeouts, recorder, log)
	if err != nil {
		return err
	}

	commands := command.NewRegistry()
	observer := provisioning.NewLogObserver(log)
	coord := provisioning.New(cloud, newConnector(timeouts, commands, log),
		provisioning.WithBootstrap(provisioning.BootstrapFromConfig(&cfg.Default)),
		provisioning.WithCommands(commands),
		provisioning.WithPortBatchSize(timeouts.PortCleanupBatchSize),
		provisioning.WithObserver(observer),
		provisioning.WithLogger(log.WithName("provisioning")),
	)

	archiver, err := newArchiver(cfg.Archive, runID, log)
	if err != nil {
		return err
	}

	orch := orchestration.New(cfg, spec, coord,
		orchestration.WithCommands(commands),
		orchestration.WithArchiver(archiver),
		orchestration.WithMetrics(recorder),
		orchestration.WithTracer(tp.Tracer()),
		orchestration.WithObserver(observer),
		orchestration.WithLogger(log.WithName("orchestration")),
		orchestration.WithRunID(runID),
	)

	if err := orch.Run(ctx); err != nil {
		return err
	}
	log.Info("deployment finished", "state", orch.StatePath(), "hosts", orch.Spec().Hosts)
	return nil
}
