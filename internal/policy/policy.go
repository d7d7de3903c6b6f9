// Package policy implements the capability policy engine: a pure,
// deny-overrides decision function over typed capability requests.
package policy

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml"

	"github.com/conduitrun/conduit/pkg/runtime"
)

// AllowRules lists the capability scopes a Policy permits.
type AllowRules struct {
	FSRead      []string `toml:"fs_read"`
	FSWrite     []string `toml:"fs_write"`
	NetHTTP     []string `toml:"net_http"`
	Exec        []string `toml:"exec"`
	SecretsRead []string `toml:"secrets_read"`
}

// DenyRules lists capability kinds denied outright, regardless of AllowRules.
type DenyRules struct {
	All []runtime.CapabilityKind `toml:"all"`
}

// Policy is a pure value: given the same request, Check always returns the
// same Decision. It holds no file handles, clocks, or other hidden state.
type Policy struct {
	Allow AllowRules `toml:"allow"`
	Deny  DenyRules  `toml:"deny"`
}

// Checker is anything that can evaluate a capability request. Both Policy
// (a static value) and *Resolver (a hot-reloading wrapper) satisfy it, so
// callers can swap one for the other without touching the decision point.
type Checker interface {
	Check(request runtime.CapabilityRequest) Decision
}

// Decision is the outcome of a capability check.
type Decision struct {
	Allowed bool
	Reason  string // populated only when Allowed is false
}

// Allow is the zero-reason affirmative decision.
var Allow = Decision{Allowed: true}

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// Restrictive returns the default policy: fs_read/fs_write are allowed only
// in the current working directory, and exec/net_http/secrets_read are
// denied outright.
func Restrictive() Policy {
	return Policy{
		Allow: AllowRules{
			FSRead:  []string{"."},
			FSWrite: []string{"."},
		},
		Deny: DenyRules{
			All: []runtime.CapabilityKind{
				runtime.CapabilityExec,
				runtime.CapabilityNetHTTP,
				runtime.CapabilitySecretsRead,
			},
		},
	}
}

// Load reads and parses a policy from a TOML file.
func Load(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(data)
}

// Parse parses a policy from TOML bytes.
func Parse(data []byte) (Policy, error) {
	var p Policy
	if err := toml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy toml: %w", err)
	}
	return p, nil
}

// Check evaluates a capability request against the policy. Explicit denials
// in Deny.All take precedence over anything in Allow — deny overrides allow.
func (p Policy) Check(request runtime.CapabilityRequest) Decision {
	for _, k := range p.Deny.All {
		if k == request.Kind {
			return deny("%s is denied by policy", request.Kind)
		}
	}

	var allowed bool
	switch request.Kind {
	case runtime.CapabilityFSRead:
		allowed = pathAllowed(p.Allow.FSRead, request.Scope)
	case runtime.CapabilityFSWrite:
		allowed = pathAllowed(p.Allow.FSWrite, request.Scope)
	case runtime.CapabilityNetHTTP:
		allowed = domainAllowed(p.Allow.NetHTTP, request.Scope)
	case runtime.CapabilityExec:
		allowed = commandAllowed(p.Allow.Exec, request.Scope)
	case runtime.CapabilitySecretsRead:
		allowed = exactAllowed(p.Allow.SecretsRead, request.Scope)
	default:
		return deny("unknown capability kind %q", request.Kind)
	}

	if allowed {
		return Allow
	}
	if request.Scope == "" {
		return deny("%s not in allowlist", request.Kind)
	}
	return deny("%s not in allowlist (scope: %s)", request.Kind, request.Scope)
}

func pathAllowed(allowlist []string, scope string) bool {
	if scope == "" {
		return len(allowlist) > 0
	}
	for _, pattern := range allowlist {
		if pattern == "*" || pattern == "**" {
			return true
		}
		if strings.HasPrefix(scope, pattern) {
			return true
		}
		if strings.HasSuffix(pattern, "/*") {
			prefix := pattern[:len(pattern)-2]
			if strings.HasPrefix(scope, prefix) && !strings.Contains(scope[len(prefix):], "/") {
				return true
			}
		}
		if strings.HasSuffix(pattern, "/**") {
			prefix := pattern[:len(pattern)-3]
			if strings.HasPrefix(scope, prefix) {
				return true
			}
		}
	}
	return false
}

func domainAllowed(allowlist []string, scope string) bool {
	if scope == "" {
		return len(allowlist) > 0
	}
	for _, allowed := range allowlist {
		if allowed == "*" {
			return true
		}
		if scope == allowed || strings.HasSuffix(scope, "."+allowed) {
			return true
		}
	}
	return false
}

func commandAllowed(allowlist []string, scope string) bool {
	if scope == "" {
		return len(allowlist) > 0
	}
	for _, allowed := range allowlist {
		if allowed == "*" {
			return true
		}
		if scope == allowed || strings.HasPrefix(scope, allowed+" ") {
			return true
		}
	}
	return false
}

func exactAllowed(allowlist []string, scope string) bool {
	if scope == "" {
		return len(allowlist) > 0
	}
	for _, allowed := range allowlist {
		if allowed == "*" || allowed == scope {
			return true
		}
	}
	return false
}
