// Package autherr holds the sentinel error taxonomy shared by the engine and
// its internal flows, plus the mapping from each sentinel to a caller-facing
// status class.
package autherr
