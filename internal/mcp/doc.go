// Package mcp exposes the grep operation as an MCP tool.
//
// The server is built on github.com/modelcontextprotocol/go-sdk/mcp and
// serves over stdio. Each call runs the grep engine with an in-memory
// sink and returns the collected records.
package mcp
