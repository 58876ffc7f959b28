package policy

import (
	"net"
	"strconv"
	"strings"

	"github.com/momentics/sandboxworker/api"
)

// Ensure compile-time api.Evaluator compliance.
var _ api.Evaluator = (*Ruleset)(nil)

// Evaluate resolves p against rs without any precompilation (spec.md
// §4.3). Behavior must be, and is, identical to Compiled.Evaluate.
func (rs *Ruleset) Evaluate(p api.Probe) api.Decision {
	switch p.Kind {
	case api.ProbeFSRead:
		return rs.evaluateFS(p.Subject, "read_file")
	case api.ProbeFSWrite:
		return rs.evaluateFS(p.Subject, "write_file")
	case api.ProbeListDir:
		return rs.evaluateFS(p.Subject, "read_dir")
	case api.ProbeNetConnect:
		return rs.evaluateNet(p.Subject)
	case api.ProbeExec:
		return rs.evaluateExec(p.Subject)
	default:
		return api.Allow
	}
}

func (rs *Ruleset) evaluateFS(path, perm string) api.Decision {
	var matches []api.Decision
	for _, rule := range rs.FS {
		if !strings.HasPrefix(path, rule.Path) {
			continue
		}
		if !hasPerm(rule.Perms, perm) {
			continue
		}
		if d, ok := parseAction(rule.Action); ok {
			matches = append(matches, d)
		}
	}
	if d, ok := resolve(matches); ok {
		return d
	}
	return rs.fallback("fs")
}

func hasPerm(perms []string, want string) bool {
	for _, p := range perms {
		if p == want {
			return true
		}
	}
	return false
}

func (rs *Ruleset) evaluateNet(hostport string) api.Decision {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return rs.fallback("net")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return rs.fallback("net")
	}
	ip := net.ParseIP(host)

	var matches []api.Decision
	for _, rule := range rs.Net {
		if rule.Proto != "" && !strings.EqualFold(rule.Proto, "tcp") {
			// Only tcp is modeled for outbound connect per spec.md §3; a
			// rule for another proto simply never matches a connect probe.
			continue
		}
		_, ipnet, err := net.ParseCIDR(rule.CIDR)
		if err != nil || ip == nil || !ipnet.Contains(ip) {
			continue
		}
		if !portsMatch(rule.Ports, port) {
			continue
		}
		if d, ok := parseAction(rule.Action); ok {
			matches = append(matches, d)
		}
	}
	if d, ok := resolve(matches); ok {
		return d
	}
	return rs.fallback("net")
}

// portsMatch parses a comma-separated port specification, each element a
// decimal integer or an inclusive "lo-hi" range. Malformed tokens are
// skipped silently (spec.md §4.3).
func portsMatch(spec string, port int) bool {
	for _, tok := range strings.Split(spec, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(tok, "-"); ok {
			loN, errLo := strconv.Atoi(strings.TrimSpace(lo))
			hiN, errHi := strconv.Atoi(strings.TrimSpace(hi))
			if errLo != nil || errHi != nil {
				continue
			}
			if port >= loN && port <= hiN {
				return true
			}
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if port == n {
			return true
		}
	}
	return false
}

func (rs *Ruleset) evaluateExec(path string) api.Decision {
	var matches []api.Decision
	for _, rule := range rs.Exec {
		if rule.Path != path {
			continue
		}
		if d, ok := parseAction(rule.Action); ok {
			matches = append(matches, d)
		}
	}
	if d, ok := resolve(matches); ok {
		return d
	}
	return rs.fallback("exec")
}
