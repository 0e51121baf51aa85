package mcpclient

import "strings"

const (
	toolNamePrefix    = "mcp__"
	toolNameSeparator = "__"
)

// FormatToolName returns the namespaced name of tool on server, e.g.
// "mcp__day-ai__search".
func FormatToolName(serverID, tool string) string {
	return toolNamePrefix + serverID + toolNameSeparator + tool
}

// ParseToolName splits a namespaced tool name. The server ID ends at the
// first separator, so tool names may themselves contain "__".
func ParseToolName(name string) (serverID, tool string, ok bool) {
	rest, found := strings.CutPrefix(name, toolNamePrefix)
	if !found {
		return "", "", false
	}
	serverID, tool, found = strings.Cut(rest, toolNameSeparator)
	if !found || serverID == "" || tool == "" {
		return "", "", false
	}
	return serverID, tool, true
}

// IsMCPToolName reports whether name is a well-formed namespaced tool name.
func IsMCPToolName(name string) bool {
	_, _, ok := ParseToolName(name)
	return ok
}
