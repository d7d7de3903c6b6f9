package policy

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conduitrun/conduit/pkg/runtime"
)

func TestRestrictive_DeniesExec(t *testing.T) {
	p := Restrictive()
	req := runtime.CapabilityRequest{Kind: runtime.CapabilityExec, Scope: "rm -rf /"}
	if p.Check(req).Allowed {
		t.Fatal("expected exec to be denied by the restrictive default")
	}
}

func TestRestrictive_DeniesNetHTTPAndSecrets(t *testing.T) {
	p := Restrictive()
	for _, kind := range []runtime.CapabilityKind{runtime.CapabilityNetHTTP, runtime.CapabilitySecretsRead} {
		req := runtime.CapabilityRequest{Kind: kind, Scope: "anything"}
		if p.Check(req).Allowed {
			t.Errorf("expected %s to be denied by the restrictive default", kind)
		}
	}
}

func TestRestrictive_AllowsFSInCWD(t *testing.T) {
	p := Restrictive()
	tests := []struct {
		kind  runtime.CapabilityKind
		scope string
	}{
		{runtime.CapabilityFSRead, "./src/main.go"},
		{runtime.CapabilityFSWrite, "./out.txt"},
	}
	for _, tt := range tests {
		req := runtime.CapabilityRequest{Kind: tt.kind, Scope: tt.scope}
		if !p.Check(req).Allowed {
			t.Errorf("expected %s(%s) to be allowed by the restrictive default", tt.kind, tt.scope)
		}
	}
}

func TestParse_TOML(t *testing.T) {
	doc := []byte(`
[allow]
fs_read = ["./", "/tmp/**"]
net_http = ["api.anthropic.com"]

[deny]
all = ["exec"]
`)
	p, err := Parse(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	allowed := []runtime.CapabilityRequest{
		{Kind: runtime.CapabilityFSRead, Scope: "./foo.txt"},
		{Kind: runtime.CapabilityFSRead, Scope: "/tmp/bar/baz"},
		{Kind: runtime.CapabilityNetHTTP, Scope: "api.anthropic.com"},
	}
	for _, req := range allowed {
		if !p.Check(req).Allowed {
			t.Errorf("expected %+v to be allowed", req)
		}
	}

	denied := []runtime.CapabilityRequest{
		{Kind: runtime.CapabilityExec, Scope: "ls"},
		{Kind: runtime.CapabilityNetHTTP, Scope: "evil.com"},
	}
	for _, req := range denied {
		if p.Check(req).Allowed {
			t.Errorf("expected %+v to be denied", req)
		}
	}
}

func TestCheck_DenyOverridesAllow(t *testing.T) {
	p := Policy{
		Allow: AllowRules{Exec: []string{"git"}},
		Deny:  DenyRules{All: []runtime.CapabilityKind{runtime.CapabilityExec}},
	}
	req := runtime.CapabilityRequest{Kind: runtime.CapabilityExec, Scope: "git status"}
	if p.Check(req).Allowed {
		t.Fatal("expected deny.all to override an otherwise-matching allowlist entry")
	}
}

func TestCheck_CommandPrefixMatch(t *testing.T) {
	p := Policy{Allow: AllowRules{Exec: []string{"git"}}}
	tests := []struct {
		scope string
		want  bool
	}{
		{"git", true},
		{"git status", true},
		{"gitx", false},
		{"go build", false},
	}
	for _, tt := range tests {
		got := p.Check(runtime.CapabilityRequest{Kind: runtime.CapabilityExec, Scope: tt.scope}).Allowed
		if got != tt.want {
			t.Errorf("exec(%q) = %v, want %v", tt.scope, got, tt.want)
		}
	}
}

func TestCheck_DomainSuffixMatch(t *testing.T) {
	p := Policy{Allow: AllowRules{NetHTTP: []string{"anthropic.com"}}}
	tests := []struct {
		scope string
		want  bool
	}{
		{"anthropic.com", true},
		{"api.anthropic.com", true},
		{"notanthropic.com", false},
	}
	for _, tt := range tests {
		got := p.Check(runtime.CapabilityRequest{Kind: runtime.CapabilityNetHTTP, Scope: tt.scope}).Allowed
		if got != tt.want {
			t.Errorf("net_http(%q) = %v, want %v", tt.scope, got, tt.want)
		}
	}
}

// TestCheckIsPure verifies Check is a pure function: the same policy and
// request always produce the same decision, with no hidden state mutation.
func TestCheckIsPure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	kinds := []runtime.CapabilityKind{
		runtime.CapabilityFSRead,
		runtime.CapabilityFSWrite,
		runtime.CapabilityNetHTTP,
		runtime.CapabilityExec,
		runtime.CapabilitySecretsRead,
	}

	properties.Property("repeated checks of the same request agree", prop.ForAll(
		func(scope string, kindIdx int) bool {
			p := Restrictive()
			req := runtime.CapabilityRequest{Kind: kinds[kindIdx%len(kinds)], Scope: scope}
			first := p.Check(req)
			second := p.Check(req)
			return first.Allowed == second.Allowed && first.Reason == second.Reason
		},
		gen.AlphaString(),
		gen.IntRange(0, 1000),
	))

	properties.Property("deny.all always wins regardless of scope", prop.ForAll(
		func(scope string, kindIdx int) bool {
			kind := kinds[kindIdx%len(kinds)]
			p := Policy{
				Allow: AllowRules{
					FSRead: []string{"*"}, FSWrite: []string{"*"}, NetHTTP: []string{"*"},
					Exec: []string{"*"}, SecretsRead: []string{"*"},
				},
				Deny: DenyRules{All: []runtime.CapabilityKind{kind}},
			}
			return !p.Check(runtime.CapabilityRequest{Kind: kind, Scope: scope}).Allowed
		},
		gen.AlphaString(),
		gen.IntRange(0, 1000),
	))

	properties.Property("empty allowlist with no deny denies everything", prop.ForAll(
		func(scope string, kindIdx int) bool {
			kind := kinds[kindIdx%len(kinds)]
			p := Policy{}
			return !p.Check(runtime.CapabilityRequest{Kind: kind, Scope: scope}).Allowed
		},
		gen.AlphaString(),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
