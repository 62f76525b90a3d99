// Package account defines the durable account record and the store contract
// the engine consumes. Concrete stores live under store/.
package account
