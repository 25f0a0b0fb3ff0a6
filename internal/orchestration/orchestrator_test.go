package orchestration_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wangkuntian/pipeman/internal/command"
	"github.com/wangkuntian/pipeman/internal/config"
	"github.com/wangkuntian/pipeman/internal/inventory"
	"github.com/wangkuntian/pipeman/internal/metrics"
	"github.com/wangkuntian/pipeman/internal/orchestration"
	"github.com/wangkuntian/pipeman/internal/provisioning"
	fakes "github.com/wangkuntian/pipeman/internal/testing"
	"github.com/wangkuntian/pipeman/internal/util/labels"
	"github.com/wangkuntian/pipeman/internal/util/retry"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx      context.Context
		workDir  string
		now      time.Time
		cloud    *fakes.FakeCloud
		conn     *fakes.FakeConnector
		stages   *stageRecorder
		archiver *fakeArchiver
		recorder *metrics.Recorder
		builder  *fakes.ConfigBuilder
		commands *command.Registry
	)

	BeforeEach(func() {
		ctx = context.Background()
		workDir = GinkgoT().TempDir()
		now = time.Date(2026, 10, 17, 9, 30, 0, 0, time.Local)
		writeFile(workDir, "configs/all-in-one.ini", "[node]\nnode = placeholder\n")
		writeFile(workDir, "configs/multinode.ini", "[node]\n\n[global]\n")
		writeFile(workDir, "configs/uswift.ign", `{"ignition":{"version":"3.3.0"}}`)

		cloud = fakes.NewFakeCloud("public")
		conn = fakes.NewFakeConnector()
		stages = &stageRecorder{}
		archiver = &fakeArchiver{}
		recorder = metrics.New()
		builder = fakes.NewConfigBuilder().WithWorkDir(workDir)
		commands = command.NewRegistry()
	})

	newOrchestrator := func(cfg *config.Config, spec *orchestration.DeploymentSpec, opts ...orchestration.Option) *orchestration.Orchestrator {
		coord := provisioning.New(cloud, connectorFor(conn),
			provisioning.WithBootstrap(provisioning.BootstrapFromConfig(&cfg.Default)),
			provisioning.WithLogger(ginkgoLogger()),
		)
		opts = append([]orchestration.Option{
			orchestration.WithLogger(ginkgoLogger()),
			orchestration.WithObserver(stages),
			orchestration.WithArchiver(archiver),
			orchestration.WithMetrics(recorder),
			orchestration.WithRunID("run-1"),
		}, opts...)
		return orchestration.New(cfg, spec, coord, opts...)
	}

	Context("single node with a pre-supplied host", func() {
		var (
			o     *orchestration.Orchestrator
			spans *tracetest.SpanRecorder
		)

		BeforeEach(func() {
			cfg := builder.Build()
			spec, err := orchestration.NewSpec(cfg, config.ArchAMD64, config.ModeAllInOne, []string{" 192.0.2.50 "}, now)
			Expect(err).NotTo(HaveOccurred())

			spans = tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
			DeferCleanup(tp.Shutdown, context.Background())

			o = newOrchestrator(cfg, spec, orchestration.WithTracer(tp.Tracer("test")))
		})

		It("configures and deploys without touching the cloud", func() {
			Expect(o.Run(ctx)).To(Succeed())

			Expect(o.Current()).To(Equal(orchestration.StateDeployed))
			Expect(stages.order()).To(Equal([]string{
				orchestration.EventUseHosts,
				orchestration.EventConfigure,
				orchestration.EventDeploy,
			}))
			Expect(cloud.Calls()).To(BeEmpty())
		})

		It("writes the node entry and uploads the inventory", func() {
			Expect(o.Run(ctx)).To(Succeed())

			remote := conn.Remote("192.0.2.50")
			Expect(remote.Hostname()).To(Equal("node1"))

			uploads := remote.Uploads()
			Expect(uploads).To(HaveLen(1))
			Expect(uploads[0].Remote).To(Equal("/etc/ustack-deploy/config.ini"))
			Expect(string(uploads[0].Data)).To(ContainSubstring("node = node1,192.0.2.50,secret,ens3,ens4"))
			Expect(string(uploads[0].Data)).NotTo(ContainSubstring("[global]"))

			Expect(remote.Streamed()).To(Equal([]string{commands.Deploy(config.ModeAllInOne)}))
		})

		It("persists the state and archives the artifacts", func() {
			Expect(o.Run(ctx)).To(Succeed())

			Expect(o.StatePath()).To(Equal(filepath.Join(workDir, "state", "2026-10-17-09-30.yaml")))
			st, err := orchestration.LoadState(o.StatePath())
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Stage).To(Equal(orchestration.StateDeployed))
			Expect(st.RunID).To(Equal("run-1"))
			Expect(st.Hosts).To(Equal([]string{"192.0.2.50"}))
			Expect(st.HostsConfigured()).To(BeTrue())

			Expect(archiver.names).To(Equal([]string{"config.ini", "2026-10-17-09-30.yaml"}))
		})

		It("records a metric and a span per executed stage", func() {
			Expect(o.Run(ctx)).To(Succeed())

			count, err := testutil.GatherAndCount(recorder.Registry(), "pipeman_pipeline_stages_total")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))

			var names []string
			for _, s := range spans.Ended() {
				names = append(names, s.Name())
			}
			Expect(names).To(Equal([]string{"stage.configure", "stage.deploy"}))
		})

		It("treats a failing deploy script and archive as best effort", func() {
			cmd := commands.Deploy(config.ModeAllInOne)
			conn.Remote("192.0.2.50").FailNext(cmd, fakes.ExecFailure("192.0.2.50", cmd, 1, "ansible failed"))
			archiver.err = errors.New("bucket gone")

			Expect(o.Run(ctx)).To(Succeed())
			Expect(o.Current()).To(Equal(orchestration.StateDeployed))
		})

		It("fails when the host has no interfaces", func() {
			conn.Remote("192.0.2.50").SetInterfaces("", "", errors.New("no network interfaces found"))

			err := o.Run(ctx)

			Expect(err).To(MatchError(ContainSubstring("configure stage failed")))
			Expect(o.Current()).To(Equal(orchestration.StateFleetReady))
			Expect(stages.failed).To(Equal([]string{orchestration.EventConfigure}))
		})
	})

	Context("fresh multi node run", func() {
		var (
			o    *orchestration.Orchestrator
			spec *orchestration.DeploymentSpec
		)

		BeforeEach(func() {
			cfg := builder.WithVIPPort("port-vip").Build()
			var err error
			spec, err = orchestration.NewSpec(cfg, config.ArchARM64, config.ModeMultiNode, nil, now)
			Expect(err).NotTo(HaveOccurred())
			o = newOrchestrator(cfg, spec)

			cloud.AddPort("port-vip", "10.10.0.100")
			imageCmd := commands.CreateImage("iso", filepath.Join(workDir, "uswift.iso"), "uswift.iso")
			conn.Remote(cfg.Default.Host).Respond(imageCmd, "img-1\n")
		})

		It("runs every stage in order", func() {
			Expect(o.Run(ctx)).To(Succeed())

			Expect(stages.order()).To(Equal([]string{
				orchestration.EventBuildImage,
				orchestration.EventSetupInstaller,
				orchestration.EventSnapshot,
				orchestration.EventProvisionFleet,
				orchestration.EventConfigure,
				orchestration.EventDeploy,
			}))
			Expect(o.Current()).To(Equal(orchestration.StateDeployed))
		})

		It("resolves the vip before creating anything", func() {
			Expect(o.Run(ctx)).To(Succeed())

			calls := cloud.Calls()
			Expect(calls[0]).To(Equal("show_port port-vip"))
			Expect(calls[1]).To(Equal("wait_image img-1"))
			Expect(spec.VIP).To(Equal("10.10.0.100"))
		})

		It("installs onto the attached volume and reboots the installer", func() {
			Expect(o.Run(ctx)).To(Succeed())

			var installerHost string
			for _, s := range cloud.Servers() {
				if s.Name == spec.Timestamp+"-uswift-installer" {
					installerHost = s.Addresses["public"][0].Addr
				}
			}
			Expect(installerHost).NotTo(BeEmpty())

			remote := conn.Remote(installerHost)
			Expect(remote.Uploads()).To(HaveLen(1))
			Expect(remote.Uploads()[0].Remote).To(Equal("/root/uswift.ign"))
			Expect(remote.Streamed()).To(Equal([]string{commands.InstallUSwift("/dev/vda")}))
			Expect(remote.Reboots()).To(Equal(1))

			Expect(cloud.CallsOf("create_snapshot")).To(HaveLen(1))
			Expect(spec.SnapshotID).NotTo(BeEmpty())
		})

		It("boots three servers in the arm zone and renders the multi node inventory", func() {
			Expect(o.Run(ctx)).To(Succeed())

			Expect(cloud.Servers()).To(HaveLen(4))
			Expect(spec.Hosts).To(HaveLen(3))
			roles := map[string]int{}
			for _, s := range cloud.Servers() {
				Expect(s.Metadata).To(HaveKeyWithValue(labels.KeyRun, spec.Timestamp))
				Expect(s.Metadata).To(HaveKeyWithValue(labels.KeyArch, "arm64"))
				roles[s.Metadata[labels.KeyRole]]++
			}
			Expect(roles).To(Equal(map[string]int{labels.RoleInstaller: 1, labels.RoleNode: 3}))
			Expect(spec.AvailabilityZone).To(Equal("nova-arm"))

			inv, err := inventory.Load(spec.InventoryFile)
			Expect(err).NotTo(HaveOccurred())
			entries, err := inv.Nodes()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))
			for i, e := range entries {
				Expect(e.Key).To(Equal(e.Node.Name))
				Expect(e.Node.Name).To(Equal([]string{"node1", "node2", "node3"}[i]))
				Expect(e.Node.Address).To(Equal(spec.Hosts[i]))
				Expect(conn.Remote(spec.Hosts[i]).Hostname()).To(Equal(e.Node.Name))
			}
			Expect(inv.Global()).To(Equal(inventory.Global{VIP: "10.10.0.100", RouterID: "51"}))

			first := conn.Remote(spec.Hosts[0])
			Expect(first.Uploads()).To(HaveLen(1))
			Expect(first.Streamed()).To(Equal([]string{commands.Deploy(config.ModeMultiNode)}))
			Expect(conn.Remote(spec.Hosts[1]).Uploads()).To(BeEmpty())
		})
	})

	Context("multi node with a vip port that has no address", func() {
		It("fails before any resource is created", func() {
			cfg := builder.WithVIPPort("port-vip").Build()
			spec, err := orchestration.NewSpec(cfg, config.ArchAMD64, config.ModeMultiNode, nil, now)
			Expect(err).NotTo(HaveOccurred())
			o := newOrchestrator(cfg, spec)
			cloud.AddPort("port-vip")

			err = o.Run(ctx)

			Expect(err).To(MatchError(provisioning.ErrPortHasNoIP))
			Expect(cloud.Calls()).To(Equal([]string{"show_port port-vip"}))
			Expect(conn.Acquired()).To(BeEmpty())
			Expect(stages.order()).To(BeEmpty())
			_, statErr := os.Stat(o.StatePath())
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})
	})

	Context("installer retries", func() {
		var o *orchestration.Orchestrator

		BeforeEach(func() {
			cfg := builder.WithImage("img-9").Build()
			spec, err := orchestration.NewSpec(cfg, config.ArchAMD64, config.ModeAllInOne, nil, now)
			Expect(err).NotTo(HaveOccurred())
			o = newOrchestrator(cfg, spec)
		})

		// The installer is the first server the fake creates.
		const installerHost = "192.0.2.11"

		It("recovers from one failed install", func() {
			conn.Remote(installerHost).FailNext(commands.InstallUSwift("/dev/vda"), errors.New("disk busy"))

			Expect(o.Run(ctx)).To(Succeed())

			Expect(stages.order()[0]).To(Equal(orchestration.EventUseImage))
			Expect(conn.Remote(installerHost).Streamed()).To(HaveLen(2))
		})

		It("gives up after the second failure", func() {
			cmd := commands.InstallUSwift("/dev/vda")
			conn.Remote(installerHost).FailNext(cmd, errors.New("disk busy"), errors.New("disk busy"))

			err := o.Run(ctx)

			Expect(err).To(MatchError(ContainSubstring("setup_installer stage failed")))
			Expect(o.Current()).To(Equal(orchestration.StateImageReady))
			Expect(conn.Remote(installerHost).Reboots()).To(BeZero())

			st, err := orchestration.LoadState(o.StatePath())
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Stage).To(Equal(orchestration.StateImageReady))
			Expect(st.ImageID).To(Equal("img-9"))
		})

		It("logs the timeout and the run selector when a stage fails", func() {
			cfg := builder.WithImage("img-9").Build()
			spec, err := orchestration.NewSpec(cfg, config.ArchAMD64, config.ModeAllInOne, nil, now)
			Expect(err).NotTo(HaveOccurred())
			lines := &logLines{}
			o = newOrchestrator(cfg, spec, orchestration.WithLogger(lines.logger()))

			timeout := &retry.TimeoutError{Waited: time.Minute, Attempts: 3}
			conn.Remote(installerHost).FailNext(commands.InstallUSwift("/dev/vda"), timeout, timeout)

			Expect(o.Run(ctx)).To(MatchError(timeout))

			failed := lines.matching(`"msg"="stage failed"`)
			Expect(failed).To(HaveLen(1))
			Expect(failed[0]).To(ContainSubstring(`"stage"="setup_installer"`))
			Expect(failed[0]).To(ContainSubstring(`"timed_out"=true`))
			Expect(failed[0]).To(ContainSubstring(`"selector"="pipeman.io/run=2026-10-17-09-30"`))
		})
	})

	Context("resuming from a saved state", func() {
		It("reuses the saved hosts", func() {
			cfg := builder.Build()
			spec, err := orchestration.NewSpec(cfg, config.ArchAMD64, config.ModeAllInOne, nil, now)
			Expect(err).NotTo(HaveOccurred())

			path := filepath.Join(workDir, "state", "earlier.yaml")
			Expect(orchestration.SaveState(path, &orchestration.PipelineState{
				Mode:       config.ModeAllInOne,
				Stage:      orchestration.StateFleetReady,
				SnapshotID: "snap-7",
				Hosts:      []string{"192.0.2.60"},
			})).To(Succeed())
			st, err := orchestration.LoadState(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(spec.Resume(st)).To(Succeed())

			o := newOrchestrator(cfg, spec)
			Expect(o.Run(ctx)).To(Succeed())

			Expect(stages.order()[0]).To(Equal(orchestration.EventUseHosts))
			Expect(cloud.Calls()).To(BeEmpty())
			Expect(conn.Remote("192.0.2.60").Streamed()).To(HaveLen(1))
		})
	})
})
