// Package retry provides interval-based retry and polling with an optional
// accumulated-wait ceiling.
//
// The [Do] function re-runs an operation until it succeeds, returns a
// [Fatal] error, or the policy's wait budget is spent. It backs SSH session
// acquisition and every OpenStack status poll.
package retry
