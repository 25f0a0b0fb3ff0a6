// Package provisioning composes the OpenStack client and SSH sessions into
// task-level actions: build an installer image, bring volumes, servers and
// snapshots to a settled state, and fan out a server fleet.
//
// # Core Types
//
// Coordinator runs the compound actions. Each one waits for the resources it
// creates to converge before it returns; none decides whether a failure is
// fatal.
// CloudAPI and Remote are the control plane and host surfaces it drives.
// Connector opens Remote sessions with retry.
// Observer receives resource and phase events.
package provisioning
