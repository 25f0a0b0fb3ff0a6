// Package labels builds the metadata attached to OpenStack servers.
//
// Every key uses the pipeman.io prefix. A run is identified by its
// timestamp, so all servers of one run can be listed with SelectorForRun.
package labels
