// Package notes is a small local note store with MCP tool handlers on top,
// so notes can be read and edited through the same dispatcher as remote
// tools.
package notes
