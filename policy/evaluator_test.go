package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/momentics/sandboxworker/api"
)

func TestDenyDominates(t *testing.T) {
	rs := &Ruleset{FS: []FSRule{
		{Path: "/etc", Perms: []string{"write_file"}, Action: "allow"},
		{Path: "/etc", Perms: []string{"write_file"}, Action: "deny"},
		{Path: "/etc", Perms: []string{"write_file"}, Action: "warn"},
	}}
	got := rs.Evaluate(api.Probe{Kind: api.ProbeFSWrite, Subject: "/etc/passwd"})
	if got != api.Deny {
		t.Fatalf("Evaluate = %v, want deny", got)
	}
}

func TestWarnDominatesAllow(t *testing.T) {
	rs := &Ruleset{FS: []FSRule{
		{Path: "/tmp", Perms: []string{"read_file"}, Action: "allow"},
		{Path: "/tmp", Perms: []string{"read_file"}, Action: "warn"},
	}}
	got := rs.Evaluate(api.Probe{Kind: api.ProbeFSRead, Subject: "/tmp/x"})
	if got != api.Warn {
		t.Fatalf("Evaluate = %v, want warn", got)
	}
}

func TestEmptyMatchesUsesDefaults(t *testing.T) {
	rs := &Ruleset{Defaults: map[string]string{"fs": "deny"}}
	got := rs.Evaluate(api.Probe{Kind: api.ProbeFSRead, Subject: "/any/path"})
	if got != api.Deny {
		t.Fatalf("Evaluate = %v, want deny (from defaults)", got)
	}

	rs2 := &Ruleset{}
	got2 := rs2.Evaluate(api.Probe{Kind: api.ProbeFSRead, Subject: "/any/path"})
	if got2 != api.Allow {
		t.Fatalf("Evaluate = %v, want allow (unset default)", got2)
	}
}

func TestFSPrefixSemantics(t *testing.T) {
	rs := &Ruleset{FS: []FSRule{
		{Path: "/", Perms: []string{"read_file"}, Action: "deny"},
	}}
	if got := rs.Evaluate(api.Probe{Kind: api.ProbeFSRead, Subject: "/a"}); got != api.Deny {
		t.Errorf("/a against rule path=/ = %v, want deny", got)
	}

	rs2 := &Ruleset{FS: []FSRule{
		{Path: "/b", Perms: []string{"read_file"}, Action: "deny"},
	}}
	if got := rs2.Evaluate(api.Probe{Kind: api.ProbeFSRead, Subject: "/a"}); got != api.Allow {
		t.Errorf("/a against rule path=/b = %v, want allow (no match, no defaults)", got)
	}
}

func TestCIDRMembership(t *testing.T) {
	rs := &Ruleset{Net: []NetRule{
		{CIDR: "10.0.0.0/8", Proto: "tcp", Ports: "80,443,8000-8100", Action: "deny"},
	}}
	cases := []struct {
		addr string
		want api.Decision
	}{
		{"10.0.0.5:80", api.Deny},
		{"10.0.0.5:8050", api.Deny},
		{"10.0.0.5:81", api.Allow},
	}
	for _, c := range cases {
		got := rs.Evaluate(api.Probe{Kind: api.ProbeNetConnect, Subject: c.addr})
		if got != c.want {
			t.Errorf("Evaluate(%q) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestCIDRMembershipDistinctNetworks(t *testing.T) {
	rs := &Ruleset{Net: []NetRule{
		{CIDR: "10.0.0.0/8", Proto: "tcp", Ports: "1-65535", Action: "deny"},
	}}
	if got := rs.Evaluate(api.Probe{Kind: api.ProbeNetConnect, Subject: "10.0.0.5:1"}); got != api.Deny {
		t.Errorf("10.0.0.5 in 10.0.0.0/8 = %v, want deny", got)
	}
	rs2 := &Ruleset{Net: []NetRule{
		{CIDR: "10.1.0.0/16", Proto: "tcp", Ports: "1-65535", Action: "deny"},
	}}
	if got := rs2.Evaluate(api.Probe{Kind: api.ProbeNetConnect, Subject: "10.0.0.5:1"}); got != api.Allow {
		t.Errorf("10.0.0.5 not in 10.1.0.0/16 = %v, want allow", got)
	}
}

func TestExecExactMatch(t *testing.T) {
	rs := &Ruleset{Exec: []ExecRule{{Path: "/bin/bash", Action: "deny"}}}
	if got := rs.Evaluate(api.Probe{Kind: api.ProbeExec, Subject: "/bin/bash"}); got != api.Deny {
		t.Errorf("exact match = %v, want deny", got)
	}
	if got := rs.Evaluate(api.Probe{Kind: api.ProbeExec, Subject: "/bin/bash2"}); got != api.Allow {
		t.Errorf("non-exact match = %v, want allow", got)
	}
}

func TestMalformedPortTokensSkippedSilently(t *testing.T) {
	rs := &Ruleset{Net: []NetRule{
		{CIDR: "127.0.0.1/32", Proto: "tcp", Ports: "abc,80,,5-", Action: "deny"},
	}}
	if got := rs.Evaluate(api.Probe{Kind: api.ProbeNetConnect, Subject: "127.0.0.1:80"}); got != api.Deny {
		t.Errorf("valid token amid malformed ones = %v, want deny", got)
	}
}

func TestCompiledMatchesNaive(t *testing.T) {
	rs := &Ruleset{
		FS:   []FSRule{{Path: "/etc", Perms: []string{"write_file"}, Action: "deny"}},
		Net:  []NetRule{{CIDR: "127.0.0.1/32", Proto: "tcp", Ports: "5432", Action: "warn"}},
		Exec: []ExecRule{{Path: "/bin/bash", Action: "deny"}},
	}
	compiled := Compile(rs)

	probes := []api.Probe{
		{Kind: api.ProbeFSWrite, Subject: "/etc/passwd"},
		{Kind: api.ProbeFSRead, Subject: "/etc/passwd"},
		{Kind: api.ProbeNetConnect, Subject: "127.0.0.1:5432"},
		{Kind: api.ProbeNetConnect, Subject: "127.0.0.1:80"},
		{Kind: api.ProbeExec, Subject: "/bin/bash"},
		{Kind: api.ProbeExec, Subject: "/bin/ls"},
	}
	for _, p := range probes {
		naive := rs.Evaluate(p)
		fast := compiled.Evaluate(p)
		if naive != fast {
			t.Errorf("probe %+v: naive=%v compiled=%v, want equal", p, naive, fast)
		}
	}
}

func TestCachingLoaderReloadsAfterInvalidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	write := func(body string) {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	write("defaults:\n  fs: allow\n")

	loader := NewCachingLoader(path)
	c1, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c1.Evaluate(api.Probe{Kind: api.ProbeFSRead, Subject: "/x"}); got != api.Allow {
		t.Fatalf("Evaluate = %v, want allow", got)
	}

	// Same mtime (too fast a rewrite on some filesystems) would be a flaky
	// test; force an explicit invalidation instead, which is the same code
	// path an operator-triggered reload takes.
	write("defaults:\n  fs: deny\n")
	loader.Invalidate()

	c2, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c2.Evaluate(api.Probe{Kind: api.ProbeFSRead, Subject: "/x"}); got != api.Deny {
		t.Fatalf("Evaluate after invalidate = %v, want deny", got)
	}
}
