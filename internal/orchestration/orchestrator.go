package orchestration

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/looplab/fsm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/wangkuntian/pipeman/internal/command"
	"github.com/wangkuntian/pipeman/internal/config"
	"github.com/wangkuntian/pipeman/internal/metrics"
	"github.com/wangkuntian/pipeman/internal/provisioning"
	"github.com/wangkuntian/pipeman/internal/util/labels"
	"github.com/wangkuntian/pipeman/internal/util/naming"
	"github.com/wangkuntian/pipeman/internal/util/retry"
)

// Archiver stores run artifacts. Implemented by *s3.Archiver; a nil
// *s3.Archiver archives nothing.
type Archiver interface {
	ArchiveAs(ctx context.Context, timestamp, name, localPath string) (string, error)
}

type nopArchiver struct{}

func (nopArchiver) ArchiveAs(context.Context, string, string, string) (string, error) {
	return "", nil
}

// Orchestrator drives one deployment run.
type Orchestrator struct {
	cfg       *config.Config
	spec      *DeploymentSpec
	coord     *provisioning.Coordinator
	commands  *command.Registry
	machine   *fsm.FSM
	state     *PipelineState
	statePath string
	installer installer

	archiver Archiver
	metrics  *metrics.Recorder
	tracer   trace.Tracer
	observer provisioning.Observer
	log      logr.Logger
}

// installer tracks the temporary server that writes the OS to a volume.
type installer struct {
	serverID string
	volumeID string
	host     string
	device   string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCommands replaces the default command templates.
func WithCommands(r *command.Registry) Option {
	return func(o *Orchestrator) {
		o.commands = r
	}
}

// WithArchiver enables artifact archival.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.archiver = a
		}
	}
}

// WithMetrics records stage results.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer wraps every stage in a span.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithObserver sets the stage event sink.
func WithObserver(obs provisioning.Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithRunID tags the persisted state with the run id.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.state.RunID = id
	}
}

// WithStatePath overrides <work_dir>/state/<timestamp>.yaml.
func WithStatePath(path string) Option {
	return func(o *Orchestrator) {
		o.statePath = path
	}
}

// New creates an Orchestrator in the pending state.
func New(cfg *config.Config, spec *DeploymentSpec, coord *provisioning.Coordinator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		spec:      spec,
		coord:     coord,
		commands:  command.NewRegistry(),
		statePath: filepath.Join(cfg.StateDir(), naming.StateFile(spec.Timestamp)),
		state: &PipelineState{
			Timestamp: spec.Timestamp,
			Arch:      spec.Arch,
			Mode:      spec.Mode,
			Stage:     StatePending,
		},
		archiver: nopArchiver{},
		tracer:   noop.NewTracerProvider().Tracer("pipeman"),
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.observer == nil {
		o.observer = provisioning.NewLogObserver(o.log)
	}
	o.machine = newMachine(fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			o.log.V(1).Info("stage transition", "event", e.Event, "from", e.Src, "to", e.Dst)
		},
	})
	return o
}

// Current is the current pipeline state.
func (o *Orchestrator) Current() string {
	return o.machine.Current()
}

// Spec returns the spec as updated by the stages run so far.
func (o *Orchestrator) Spec() *DeploymentSpec {
	return o.spec
}

// StatePath is where the pipeline state is persisted.
func (o *Orchestrator) StatePath() string {
	return o.statePath
}

// stage is one step of the run. A nil run skips straight to the transition.
type stage struct {
	event  string
	reason string
	run    func(ctx context.Context) error
}

// Run drives the machine until the hosts are deployed or a stage fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.spec.Mode == config.ModeMultiNode && o.spec.VIP == "" {
		vip, err := o.coord.VIP(ctx, o.spec.VIPPortID)
		if err != nil {
			return err
		}
		o.spec.VIP = vip
		o.log.Info("resolved vip", "port", o.spec.VIPPortID, "vip", vip)
	}

	for o.machine.Current() != StateDeployed {
		if err := o.runStage(ctx, o.next()); err != nil {
			return err
		}
	}

	if _, err := o.archiver.ArchiveAs(ctx, o.spec.Timestamp, naming.StateFile(o.spec.Timestamp), o.statePath); err != nil {
		o.log.Error(err, "failed to archive pipeline state")
	}
	return nil
}

// next picks the stage that leaves the current state.
func (o *Orchestrator) next() stage {
	switch o.machine.Current() {
	case StatePending:
		switch {
		case len(o.spec.Hosts) > 0:
			return stage{event: EventUseHosts, reason: "hosts given"}
		case o.spec.SnapshotID != "":
			return stage{event: EventUseSnapshot, reason: "snapshot " + o.spec.SnapshotID}
		case o.spec.ImageID != "":
			return stage{event: EventUseImage, reason: "image " + o.spec.ImageID}
		default:
			return stage{event: EventBuildImage, run: o.buildImage}
		}
	case StateImageReady:
		return stage{event: EventSetupInstaller, run: o.setupInstaller}
	case StateInstallerReady:
		return stage{event: EventSnapshot, run: o.snapshot}
	case StateSnapshotReady:
		return stage{event: EventProvisionFleet, run: o.provisionFleet}
	case StateFleetReady:
		return stage{event: EventConfigure, run: o.configure}
	default:
		return stage{event: EventDeploy, run: o.deploy}
	}
}

func (o *Orchestrator) runStage(ctx context.Context, s stage) error {
	if s.run == nil {
		provisioning.LogPhaseSkipped(o.observer, s.event, s.reason)
		return o.transition(ctx, s.event)
	}

	ctx, span := o.tracer.Start(ctx, "stage."+s.event, trace.WithAttributes(
		attribute.String("pipeman.arch", string(o.spec.Arch)),
		attribute.String("pipeman.mode", string(o.spec.Mode)),
		attribute.String("pipeman.from", o.machine.Current()),
	))
	defer span.End()

	provisioning.LogPhaseStart(o.observer, s.event)
	start := time.Now()
	err := s.run(ctx)
	duration := time.Since(start)
	o.metrics.RecordStage(s.event, err, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		provisioning.LogPhaseFailed(o.observer, s.event, err)
		// Servers created so far carry the run label; the state file resumes.
		o.log.Error(err, "stage failed",
			"stage", s.event,
			"timed_out", retry.IsTimeout(err),
			"state", o.statePath,
			"selector", labels.SelectorForRun(o.spec.Timestamp),
		)
		return fmt.Errorf("%s stage failed: %w", s.event, err)
	}
	provisioning.LogPhaseComplete(o.observer, s.event, duration)
	return o.transition(ctx, s.event)
}

func (o *Orchestrator) transition(ctx context.Context, event string) error {
	if err := o.machine.Event(ctx, event); err != nil {
		return fmt.Errorf("transition %s from %s: %w", event, o.machine.Current(), err)
	}
	o.saveState()
	return nil
}

// saveState persists the state. Failure is logged only: the cloud, not
// the file, is the record of what exists.
func (o *Orchestrator) saveState() {
	st := o.state
	st.Stage = o.machine.Current()
	st.ImageID = o.spec.ImageID
	st.SnapshotID = o.spec.SnapshotID
	st.Hosts = append([]string(nil), o.spec.Hosts...)
	st.VIP = o.spec.VIP
	st.InstallerServerID = o.installer.serverID
	st.InstallerVolumeID = o.installer.volumeID
	st.UpdatedAt = time.Now().UTC()

	if err := SaveState(o.statePath, st); err != nil {
		o.log.Error(err, "failed to save pipeline state", "path", o.statePath)
	}
}
