package runtime

// CapabilityKind is the closed set of side-effect categories the capability
// policy engine authorizes at the tool boundary.
type CapabilityKind string

const (
	CapabilityFSRead      CapabilityKind = "fs_read"
	CapabilityFSWrite     CapabilityKind = "fs_write"
	CapabilityNetHTTP     CapabilityKind = "net_http"
	CapabilityExec        CapabilityKind = "exec"
	CapabilitySecretsRead CapabilityKind = "secrets_read"
)

// CapabilityRequest is a single authorization request checked against a
// Policy. Scope interpretation is kind-dependent (see policy.Resolver).
type CapabilityRequest struct {
	Kind  CapabilityKind
	Scope string // empty means "no scope supplied"
}

// NewExecRequest builds the default, correct-by-construction mapping from a
// tool invocation to a capability request: every tool call is exec(name).
func NewExecRequest(toolName string) CapabilityRequest {
	return CapabilityRequest{Kind: CapabilityExec, Scope: toolName}
}
