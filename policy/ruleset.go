// Package policy implements the embedded policy evaluator: a stateless
// matcher that resolves a Probe against a declarative Ruleset document
// (spec.md §3, §4.3).
//
// The document shape and the yaml.v3 decoding approach follow the
// structured-config style of Generativebots-ocx-backend-go-svc's
// internal/config.Config (there yaml.v2; here yaml.v3, matching the version
// used for declarative configuration in ehrlich-b-wingthing and
// bobbydeveaux-starbucks-mugs).
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/momentics/sandboxworker/api"
)

// FSRule matches file operations by path prefix and required permission.
type FSRule struct {
	Path   string   `yaml:"path"`
	Perms  []string `yaml:"perms"`
	Action string   `yaml:"action"`
}

// NetRule matches outbound connect attempts by protocol, CIDR, and port.
type NetRule struct {
	CIDR   string `yaml:"cidr"`
	Proto  string `yaml:"proto"`
	Ports  string `yaml:"ports"`
	Action string `yaml:"action"`
}

// ExecRule matches subprocess launches by exact program path.
type ExecRule struct {
	Path   string `yaml:"path"`
	Action string `yaml:"action"`
}

// Ruleset is the declarative policy document (spec.md §3).
type Ruleset struct {
	FS       []FSRule          `yaml:"fs"`
	Net      []NetRule         `yaml:"net"`
	Exec     []ExecRule        `yaml:"exec"`
	Defaults map[string]string `yaml:"defaults"`
}

// Load reads and parses a ruleset document from path.
func Load(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %q: %w", path, err)
	}
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("policy: parse %q: %w", path, err)
	}
	return &rs, nil
}

// parseAction maps a ruleset action string to api.Decision. An unrecognized
// or empty action is treated as absent (caller falls through to defaults).
func parseAction(s string) (api.Decision, bool) {
	switch s {
	case "allow":
		return api.Allow, true
	case "warn":
		return api.Warn, true
	case "deny":
		return api.Deny, true
	default:
		return api.Allow, false
	}
}

// resolve applies the deny > warn > allow precedence rule (spec.md §4.3) to
// a set of matching actions.
func resolve(matches []api.Decision) (api.Decision, bool) {
	if len(matches) == 0 {
		return api.Allow, false
	}
	has := map[api.Decision]bool{}
	for _, d := range matches {
		has[d] = true
	}
	switch {
	case has[api.Deny]:
		return api.Deny, true
	case has[api.Warn]:
		return api.Warn, true
	default:
		return api.Allow, true
	}
}

// fallback resolves the defaults entry for a section, defaulting to Allow
// when absent (spec.md §4.3 "Resolution").
func (rs *Ruleset) fallback(section string) api.Decision {
	if rs.Defaults == nil {
		return api.Allow
	}
	if d, ok := parseAction(rs.Defaults[section]); ok {
		return d
	}
	return api.Allow
}
