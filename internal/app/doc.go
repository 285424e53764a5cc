// Package app provides application bootstrap and lifecycle management for
// toolhost.
//
// # Architecture Overview
//
// The app package wires the components of the supervisor together and runs
// them for the lifetime of `toolhost serve`:
//
//  1. **Bootstrap (`bootstrap.go`)**: logging, configuration loading and
//     service construction
//  2. **Configuration (`config.go`)**: runtime options from the command line
//  3. **Services (`services.go`)**: registry, supervisor, health monitor,
//     startup loader, admin service, gateway and MCP server
//  4. **Modes (`modes.go`)**: the serve loop, signal handling and ordered
//     shutdown
//
// # Startup Sequence
//
//  1. config.yaml is loaded from the configuration directory
//     (~/.config/toolhost unless --config-path is given)
//  2. the registry driver named in config.yaml is opened
//  3. the supervisor event loop and the health monitor are started
//  4. the MCP endpoint is started (streamable HTTP, or stdio)
//  5. the startup loader restarts every enabled server that was HEALTHY
//     when toolhost last stopped
//  6. READY=1 is sent to systemd when running under a notify unit
//
// # Shutdown Sequence
//
// SIGINT or SIGTERM (or the end of stdin in stdio mode) stops the MCP
// endpoint first so no new tool calls arrive, then the health monitor, then
// every supervised process, and finally closes the registry. STOPPING=1 is
// sent to systemd before the first step.
//
// Persisted health is not rewritten during shutdown, so the next start
// brings the same servers back.
package app
