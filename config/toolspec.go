package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/galiniliev/remote-mcp-adapter/internal/supervisor"
)

// inputTokenRE matches ${input:ID} placeholders inside argument strings.
var inputTokenRE = regexp.MustCompile(`\$\{input:([^}]+)\}`)

type inputDecl struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default,omitempty"`
}

type serverDecl struct {
	Type    string   `json:"type,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

type mcpFile struct {
	Inputs  []inputDecl           `json:"inputs,omitempty"`
	Servers map[string]serverDecl `json:"servers"`
}

// LookupFunc resolves an environment variable; os.LookupEnv in production.
type LookupFunc func(key string) (string, bool)

// LoadToolSpec reads the MCP config file at path, selects a stdio server
// (by serverName, or the first one in name order), and resolves every
// ${input:ID} token in its args. An unresolvable token is fatal.
func LoadToolSpec(path, serverName string, lookup LookupFunc) (supervisor.ToolSpec, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return supervisor.ToolSpec{}, fmt.Errorf("read mcp config %s: %w", path, err)
	}
	var file mcpFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return supervisor.ToolSpec{}, fmt.Errorf("parse mcp config %s: %w", path, err)
	}

	name, server, err := selectServer(file, serverName)
	if err != nil {
		return supervisor.ToolSpec{}, fmt.Errorf("mcp config %s: %w", path, err)
	}

	defaults := make(map[string]string, len(file.Inputs))
	declared := make(map[string]bool, len(file.Inputs))
	for _, in := range file.Inputs {
		declared[in.ID] = true
		if in.Default != "" {
			defaults[in.ID] = in.Default
		}
	}

	args := make([]string, len(server.Args))
	for i, arg := range server.Args {
		resolved, err := resolveArg(arg, defaults, lookup)
		if err != nil {
			return supervisor.ToolSpec{}, fmt.Errorf("server %q arg %d: %w", name, i, err)
		}
		args[i] = resolved
	}

	return supervisor.ToolSpec{Command: server.Command, Args: args}, nil
}

// selectServer picks the named server, or the first stdio server in sorted
// name order when no name is given.
func selectServer(file mcpFile, serverName string) (string, serverDecl, error) {
	if serverName != "" {
		server, ok := file.Servers[serverName]
		if !ok {
			return "", serverDecl{}, fmt.Errorf("server %q not found", serverName)
		}
		if !isStdio(server) {
			return "", serverDecl{}, fmt.Errorf("server %q is not a stdio server", serverName)
		}
		return serverName, server, nil
	}

	names := make([]string, 0, len(file.Servers))
	for name := range file.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if isStdio(file.Servers[name]) {
			return name, file.Servers[name], nil
		}
	}
	return "", serverDecl{}, fmt.Errorf("no stdio server configured")
}

func isStdio(s serverDecl) bool {
	return s.Command != "" && (s.Type == "" || s.Type == "stdio")
}

// resolveArg substitutes every ${input:ID} token: INPUT_<ID> (uppercased,
// dashes to underscores), then the undecorated ID, then the declared
// default.
func resolveArg(arg string, defaults map[string]string, lookup LookupFunc) (string, error) {
	var missing error
	resolved := inputTokenRE.ReplaceAllStringFunc(arg, func(token string) string {
		id := inputTokenRE.FindStringSubmatch(token)[1]
		if v, ok := lookup("INPUT_" + normalizeInputID(id)); ok {
			return v
		}
		if v, ok := lookup(id); ok {
			return v
		}
		if v, ok := defaults[id]; ok {
			return v
		}
		if missing == nil {
			missing = fmt.Errorf("input %q is not resolvable: set INPUT_%s", id, normalizeInputID(id))
		}
		return token
	})
	if missing != nil {
		return "", missing
	}
	return resolved, nil
}

func normalizeInputID(id string) string {
	return strings.ToUpper(strings.ReplaceAll(id, "-", "_"))
}
