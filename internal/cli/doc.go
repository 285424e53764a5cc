// Package cli implements the client side of the toolhost command line.
//
// Commands such as `toolhost server list` or `toolhost call` connect to the
// MCP endpoint of a running `toolhost serve` over streamable HTTP, invoke one
// of its tools and render the JSON result.
//
// # Endpoint Resolution
//
//  1. --endpoint flag
//  2. TOOLHOST_ENDPOINT environment variable
//  3. server.host and server.port from config.yaml in --config-path
//
// # Output Formats
//
//   - table: go-pretty tables with columns chosen per result type
//   - wide: table with additional columns
//   - json: the raw tool result
//   - yaml: the tool result converted to YAML
package cli
