// Package api defines the types shared by every toolhost component: server
// definitions, health states, tool call audit records, the Registry contract
// and the typed errors returned by the supervisor, gateway and validation.
//
// The package has no dependencies on other internal packages. Components
// exchange api types and depend on the api.Registry interface rather than on
// a concrete storage backend, which keeps the supervisor core testable with
// in-memory fakes.
//
// # Health States
//
// A server moves through the following states:
//
//	unknown/stopped -> starting -> healthy <-> unhealthy
//	starting -> error                (startup timeout or failure)
//	healthy/unhealthy -> error       (crash, followed by one restart attempt)
//
// HealthStopped is terminal until an explicit start.
package api
