// Package flows holds the orchestration behind each Engine operation.
//
// Each Run function takes a dependency struct and returns a result carrying
// either the outcome or a failure kind plus the error to surface. The Engine
// owns every resource, and maps failure kinds to metrics and audit events.
//
// Flows never import the root package and keep no state between calls.
package flows
