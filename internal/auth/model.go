package auth

import (
	"slices"
	"time"
)

// Capability is one operator API action. Tokens carry the capabilities of the
// operator's role and routes check them.
type Capability string

const (
	CapReadStatus     Capability = "status:read"
	CapReadBacklog    Capability = "backlog:read"
	CapRunDiagnostics Capability = "diagnostics:run"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

var roleCapabilities = map[Role][]Capability{
	RoleViewer:   {CapReadStatus},
	RoleOperator: {CapReadStatus, CapReadBacklog},
	// Ad-hoc probes run ping and traceroute from the bridge host.
	RoleAdmin: {CapReadStatus, CapReadBacklog, CapRunDiagnostics},
}

func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

func (r Role) Capabilities() []Capability {
	return slices.Clone(roleCapabilities[r])
}

// Operator is a person allowed to use the operator API.
type Operator struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal is the authenticated caller of a request, as read from its token.
type Principal struct {
	Username     string       `json:"username"`
	Role         Role         `json:"role"`
	Capabilities []Capability `json:"capabilities"`
}

func (p Principal) Can(c Capability) bool {
	return slices.Contains(p.Capabilities, c)
}
