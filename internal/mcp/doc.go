// Package mcp exposes a workspace to agents over the Model Context Protocol.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and registers knowledge_ask, knowledge_search, knowledge_add and
// knowledge_history. Text returned to clients is scrubbed for secrets.
package mcp
