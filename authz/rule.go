package authz

// Decision is the outcome of evaluating a request path against the rule list.
type Decision uint8

const (
	// Allow grants the request.
	Allow Decision = iota
	// Deny refuses the request for an authenticated caller.
	Deny
	// RequireAuth refuses the request because the caller's authentication is
	// absent or too weak; the caller should be challenged, not denied.
	RequireAuth
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case RequireAuth:
		return "require-auth"
	default:
		return "unknown"
	}
}

type accessKind uint8

const (
	kindPermitAll accessKind = iota
	kindDenyAll
	kindRequireRole
	kindRequireAnyRole
	kindAuthenticated
	kindFullyAuthenticated
)

// Access is the predicate half of a [Rule]. Construct values with
// [PermitAll], [DenyAll], [RequireRole], [RequireAnyRole],
// [RequireAuthenticated], or [RequireFullyAuthenticated].
type Access struct {
	kind  accessKind
	roles []string
}

// PermitAll grants every request, authenticated or not.
func PermitAll() Access {
	return Access{kind: kindPermitAll}
}

// DenyAll refuses every request.
func DenyAll() Access {
	return Access{kind: kindDenyAll}
}

// RequireRole grants only subjects holding exactly the named role.
// Roles do not inherit: holding ADMIN does not satisfy RequireRole("USER").
func RequireRole(role string) Access {
	return Access{kind: kindRequireRole, roles: []string{role}}
}

// RequireAnyRole grants subjects holding at least one of the named roles.
func RequireAnyRole(roles ...string) Access {
	out := make([]string, len(roles))
	copy(out, roles)
	return Access{kind: kindRequireAnyRole, roles: out}
}

// RequireAuthenticated grants any authenticated subject, including those
// resolved through a remember-me token.
func RequireAuthenticated() Access {
	return Access{kind: kindAuthenticated}
}

// RequireFullyAuthenticated grants only subjects that presented credentials
// in this browser session; remember-me-only subjects are re-challenged.
func RequireFullyAuthenticated() Access {
	return Access{kind: kindFullyAuthenticated}
}

// Rule pairs a path pattern with an access predicate. Rules are evaluated in
// declaration order, first match wins, so specific patterns must be declared
// before any wildcard that would shadow them.
type Rule struct {
	Pattern string
	Access  Access
}

// Subject is the matcher's view of the caller's authentication state.
// A nil *Subject means the request is anonymous.
type Subject struct {
	Roles          []string
	RememberMeOnly bool
}

func (s *Subject) hasAnyRole(required []string) bool {
	if s == nil {
		return false
	}
	for _, want := range required {
		for _, have := range s.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

func (a Access) apply(subject *Subject) Decision {
	switch a.kind {
	case kindPermitAll:
		return Allow
	case kindDenyAll:
		return Deny
	case kindAuthenticated:
		if subject != nil {
			return Allow
		}
		return RequireAuth
	case kindFullyAuthenticated:
		if subject != nil && !subject.RememberMeOnly {
			return Allow
		}
		return RequireAuth
	case kindRequireRole, kindRequireAnyRole:
		if subject == nil {
			return RequireAuth
		}
		if subject.hasAnyRole(a.roles) {
			return Allow
		}
		return Deny
	default:
		return RequireAuth
	}
}
