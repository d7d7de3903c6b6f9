package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conduitrun/conduit/pkg/runtime"
)

func TestNewResolver_EmptyPathServesRestrictive(t *testing.T) {
	r, err := NewResolver("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	req := runtime.CapabilityRequest{Kind: runtime.CapabilityExec, Scope: "ls"}
	if r.Check(req).Allowed {
		t.Fatal("expected the empty-path default to be restrictive")
	}
}

func TestResolver_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.toml")
	initial := "[allow]\nexec = []\n"
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatalf("write initial policy: %v", err)
	}

	r, err := NewResolver(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	req := runtime.CapabilityRequest{Kind: runtime.CapabilityExec, Scope: "git status"}
	if r.Check(req).Allowed {
		t.Fatal("expected exec to be denied before the policy grants it")
	}

	updated := "[allow]\nexec = [\"git\"]\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("write updated policy: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.Check(req).Allowed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the resolver to pick up the updated policy before the deadline")
}

func TestNewResolverWithLoader_ProjectsPolicyFromHostFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conduit.toml")
	doc := `
[backend]
model = "claude-sonnet-4-20250514"

[allow]
exec = ["git"]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write host file: %v", err)
	}

	loader := func(p string) (Policy, error) {
		data, err := os.ReadFile(p)
		if err != nil {
			return Policy{}, err
		}
		// A stand-in for config.Load(p).Policy(): projects [allow]/[deny] out
		// of a larger host file that also carries unrelated sections.
		return Parse(data)
	}

	r, err := NewResolverWithLoader(path, loader, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	req := runtime.CapabilityRequest{Kind: runtime.CapabilityExec, Scope: "git status"}
	if !r.Check(req).Allowed {
		t.Fatal("expected exec(git) to be allowed per the host file's [allow] section")
	}
}
