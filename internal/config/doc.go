// Package config defines the configuration model shared by every pipeman
// subsystem.
//
// The [Config] struct mirrors the TOML file sections (default, log,
// openstack, amd64, arm64, ignition, metrics, tracing, archive). It is
// loaded once by the CLI with [Load] and passed explicitly into each
// component's constructor. [Timeouts] carries the poll and retry cadence.
package config
