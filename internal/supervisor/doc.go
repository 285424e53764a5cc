// Package supervisor owns the lifecycle of tool-provider subprocesses.
//
// The Supervisor keeps an in-memory map from server id to its runtime handle
// and guarantees at most one live process per id. StartServer claims the map
// slot before spawning, so concurrent starts of the same id cannot produce
// two processes; the losers return without error.
//
// # Lifecycle
//
// A start writes STARTING, spawns the command through a process.Launcher and
// waits for readiness (the MCP initialize handshake, optionally preceded by
// a settle delay). The server becomes HEALTHY when ready; a startup timeout
// or a failed handshake leaves it in ERROR. A process that exits before it
// is ready is a startup failure, not a crash, and is never restarted
// automatically.
//
// Every process reports on its own event channel. A single event loop
// consumes these events: an exit with code 0 of a ready process writes
// STOPPED; any other exit is a crash, writes ERROR and schedules exactly one
// restart attempt after the restart delay, provided the definition is still
// enabled when the timer fires.
//
// StopServer cancels a pending restart, asks the process to terminate and
// kills its process tree once the grace period has passed.
package supervisor
