package policy

import (
	"net"
	"strconv"
	"strings"

	"github.com/momentics/sandboxworker/api"
)

// portRange is a precompiled "lo-hi" (or "n-n" for a single port) entry.
type portRange struct{ lo, hi int }

func (pr portRange) contains(port int) bool { return port >= pr.lo && port <= pr.hi }

type compiledFS struct {
	FSRule
}

type compiledNet struct {
	proto  string
	ipnet  *net.IPNet
	ranges []portRange
	action string
}

// Compiled is a precompiled evaluator, behaviorally identical to *Ruleset
// but with CIDRs parsed to *net.IPNet, port strings parsed to range lists,
// and exec paths indexed into a map, making FS/NET matching O(rules) over
// cheap precomputed values and EXEC matching O(1) (spec.md §4.3
// "Precompilation").
type Compiled struct {
	fs   []compiledFS
	net  []compiledNet
	exec map[string]string // path -> action string
	defs map[string]string
}

var _ api.Evaluator = (*Compiled)(nil)

// Compile precompiles rs. The original Ruleset is not mutated or retained.
func Compile(rs *Ruleset) *Compiled {
	c := &Compiled{
		exec: make(map[string]string, len(rs.Exec)),
		defs: rs.Defaults,
	}
	for _, r := range rs.FS {
		c.fs = append(c.fs, compiledFS{r})
	}
	for _, r := range rs.Net {
		_, ipnet, err := net.ParseCIDR(r.CIDR)
		if err != nil {
			continue // unparsable CIDR never matches, same as the naive path
		}
		c.net = append(c.net, compiledNet{
			proto:  r.Proto,
			ipnet:  ipnet,
			ranges: compilePorts(r.Ports),
			action: r.Action,
		})
	}
	for _, r := range rs.Exec {
		// Several rules may name the same path. Fold their actions into
		// the strongest one (deny>warn>allow) here, so the single-entry
		// index gives the same result as the naive evaluator's match list.
		c.exec[r.Path] = combineActions(c.exec[r.Path], r.Path, r.Action)
	}
	return c
}

// combineActions folds a newly seen action for the same exec path into the
// single strongest action seen so far (deny>warn>allow), since Compiled's
// exec index stores one winner per path rather than a rule list.
func combineActions(existing, _ /*path*/, newAction string) string {
	if existing == "" {
		return newAction
	}
	existingD, okE := parseAction(existing)
	newD, okN := parseAction(newAction)
	if !okN {
		return existing
	}
	if !okE {
		return newAction
	}
	if d, _ := resolve([]api.Decision{existingD, newD}); d == api.Deny {
		return "deny"
	} else if d == api.Warn {
		return "warn"
	}
	return "allow"
}

func compilePorts(spec string) []portRange {
	var out []portRange
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
			out = append(out, portRange{loN, hiN})
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		out = append(out, portRange{n, n})
	}
	return out
}

func (c *Compiled) fallback(section string) api.Decision {
	if c.defs == nil {
		return api.Allow
	}
	if d, ok := parseAction(c.defs[section]); ok {
		return d
	}
	return api.Allow
}

// Evaluate resolves p against the precompiled tables. Behavior is
// identical to (*Ruleset).Evaluate.
func (c *Compiled) Evaluate(p api.Probe) api.Decision {
	switch p.Kind {
	case api.ProbeFSRead:
		return c.evaluateFS(p.Subject, "read_file")
	case api.ProbeFSWrite:
		return c.evaluateFS(p.Subject, "write_file")
	case api.ProbeListDir:
		return c.evaluateFS(p.Subject, "read_dir")
	case api.ProbeNetConnect:
		return c.evaluateNet(p.Subject)
	case api.ProbeExec:
		return c.evaluateExec(p.Subject)
	default:
		return api.Allow
	}
}

func (c *Compiled) evaluateFS(path, perm string) api.Decision {
	var matches []api.Decision
	for _, rule := range c.fs {
		if !strings.HasPrefix(path, rule.Path) || !hasPerm(rule.Perms, perm) {
			continue
		}
		if d, ok := parseAction(rule.Action); ok {
			matches = append(matches, d)
		}
	}
	if d, ok := resolve(matches); ok {
		return d
	}
	return c.fallback("fs")
}

func (c *Compiled) evaluateNet(hostport string) api.Decision {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return c.fallback("net")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return c.fallback("net")
	}
	ip := net.ParseIP(host)

	var matches []api.Decision
	for _, rule := range c.net {
		if rule.proto != "" && !strings.EqualFold(rule.proto, "tcp") {
			continue
		}
		if ip == nil || !rule.ipnet.Contains(ip) {
			continue
		}
		matched := false
		for _, pr := range rule.ranges {
			if pr.contains(port) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if d, ok := parseAction(rule.action); ok {
			matches = append(matches, d)
		}
	}
	if d, ok := resolve(matches); ok {
		return d
	}
	return c.fallback("net")
}

func (c *Compiled) evaluateExec(path string) api.Decision {
	action, ok := c.exec[path]
	if !ok {
		return c.fallback("exec")
	}
	if d, ok := parseAction(action); ok {
		return d
	}
	return c.fallback("exec")
}
