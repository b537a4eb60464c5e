package domain

// Role is the caller's role. Capabilities are strictly increasing:
// each role includes everything the previous one may do.
type Role string

// Roles recognised by the engine.
const (
	RoleViewer   Role = "VIEWER"
	RoleOperator Role = "OPERATOR"
	RoleApprover Role = "APPROVER"
	RoleAdmin    Role = "ADMIN"
)

// Capability names used in denial messages.
const (
	CapExecuteSelect    = "execute_select_queries"
	CapExecuteTemplates = "execute_approved_templates"
	CapExecuteDML       = "execute_dml_statements"
	CapExecuteDDL       = "execute_ddl_statements"
	CapApproveTemplates = "approve_templates"
	CapManagePolicies   = "manage_policies"
)

var roleRank = map[Role]int{
	RoleViewer:   0,
	RoleOperator: 1,
	RoleApprover: 2,
	RoleAdmin:    3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

func (r Role) atLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

// Can reports whether the role holds the named capability.
func (r Role) Can(capability string) bool {
	switch capability {
	case CapExecuteSelect:
		return r.atLeast(RoleViewer)
	case CapExecuteTemplates:
		return r.atLeast(RoleOperator)
	case CapApproveTemplates:
		return r.atLeast(RoleApprover)
	case CapExecuteDML, CapExecuteDDL, CapManagePolicies:
		// Ad hoc writes are admin-only. Lesser roles change data through
		// approved templates, never directly.
		return r == RoleAdmin
	default:
		return false
	}
}
