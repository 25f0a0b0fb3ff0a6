// Package testing provides test doubles, builders, and fixtures shared by
// the provisioning and orchestration tests.
//
// This package centralizes common testing patterns to avoid duplication across test files:
//   - ConfigBuilder: Fluent builder for creating test configurations
//   - FakeCloud: In-memory control plane that converges every resource at once
//   - FakeRemote / FakeConnector: Scriptable SSH sessions
//
// Usage:
//
//	cfg := testing.NewConfigBuilder().
//	    WithWorkDir(t.TempDir()).
//	    WithVIPPort("port-vip").
//	    Build()
//
//	cloud := testing.NewFakeCloud("public")
//	connector := testing.NewFakeConnector()
package testing
