// Package orchestration provides high-level workflow coordination for a
// deployment run.
//
// This package decides which stages a run needs and drives them through a
// looplab/fsm state machine, delegating the actual work to the
// provisioning.Coordinator. It owns the DeploymentSpec and persists a
// PipelineState after every stage so a later run can resume.
//
// # Workflow
//
// The Orchestrator moves through the following states in order:
//  1. pending - Nothing built yet
//  2. image_ready - Installer image uploaded (skipped when an image id is configured)
//  3. installer_ready - Installer server booted and the OS written to a volume
//  4. snapshot_ready - Installed volume snapshotted (skipped when a snapshot id is configured)
//  5. fleet_ready - Servers booted from the snapshot (skipped when hosts are given)
//  6. configured - Inventory rendered and uploaded to the first host
//  7. deployed - Remote deploy script has run
//
// # Usage
//
//	spec, err := orchestration.NewSpec(cfg, arch, mode, hosts, time.Now())
//	o := orchestration.New(cfg, spec, coordinator, orchestration.WithLogger(log))
//	err = o.Run(ctx)
package orchestration
