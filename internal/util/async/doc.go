// Package async provides utilities for parallel task execution with
// error collection.
//
// [RunParallel] runs named tasks and joins their errors, [Map] fans out
// indexed work and returns results in request order, and [ForEachLimit]
// runs a bounded batch. All three return only after every goroutine they
// started has finished.
package async
