// Package ssh provides password-authenticated SSH sessions to deployment
// hosts.
//
// A [Session] wraps one live connection. It runs commands to completion
// ([Session.Execute]), streams long-running commands to the log
// ([Session.ExecuteStreaming]), and copies files with the SCP sink protocol
// ([Session.Upload]). [AcquireWithRetry] keeps dialing while a host boots.
package ssh
