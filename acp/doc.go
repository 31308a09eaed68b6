// Package acp implements the JSON-RPC 2.0 framing used by the Agent Client
// Protocol (ACP).
//
// Messages are newline-delimited JSON objects, one per line, rather than
// Content-Length framed. A Conn reads requests from one stream and writes
// responses and notifications to another; writes are serialized so handlers
// running on their own goroutines can share it.
//
// The aiteam ACP host (package agent/acp) and the WebSocket bridge
// (cmd/ws_bridge) both speak through this package.
package acp
