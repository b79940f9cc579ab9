// Package security provides authorization primitives and request-scoped
// user identity.
package security

// Role defines a named set of capabilities within a tenant.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleManager    Role = "manager"
	RoleViewer     Role = "viewer"
)

// Capability is a fine-grained permission checked by domain logic.
// Checks live in the engine rather than in UI code so a different caller
// cannot bypass them.
type Capability string

const (
	CapabilityNumberingRead  Capability = "numbering.read"
	CapabilityNumberingWrite Capability = "numbering.write"

	// CapabilityNumberingOverride guards manual counter overrides.
	// Duplicate or colliding invoice numbers are a compliance problem, so
	// only administrators hold it.
	CapabilityNumberingOverride Capability = "numbering.override"

	CapabilityInvoiceIssue Capability = "invoice.issue"
	CapabilityInvoiceRead  Capability = "invoice.read"
)

var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {
		CapabilityNumberingRead,
		CapabilityNumberingWrite,
		CapabilityNumberingOverride,
		CapabilityInvoiceIssue,
		CapabilityInvoiceRead,
	},
	RoleAccountant: {
		CapabilityNumberingRead,
		CapabilityNumberingWrite,
		CapabilityInvoiceIssue,
		CapabilityInvoiceRead,
	},
	RoleManager: {
		CapabilityNumberingRead,
		CapabilityInvoiceIssue,
		CapabilityInvoiceRead,
	},
	RoleViewer: {
		CapabilityNumberingRead,
		CapabilityInvoiceRead,
	},
}

// Can reports whether the role grants the capability.
func (r Role) Can(cap Capability) bool {
	for _, c := range roleCapabilities[r] {
		if c == cap {
			return true
		}
	}
	return false
}

// AnyCan reports whether any of the roles grants the capability.
func AnyCan(roles []Role, cap Capability) bool {
	for _, r := range roles {
		if r.Can(cap) {
			return true
		}
	}
	return false
}
