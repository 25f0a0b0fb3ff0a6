// Package naming provides consistent names for the cloud resources and hosts
// of one run.
//
// Every resource created by a run is prefixed with the run timestamp
// (minute precision) so that resources of different runs never collide and
// can be found again by prefix.
package naming
