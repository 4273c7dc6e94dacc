package models

// PrincipalKind tags the two possible authenticated caller types. The set is
// closed: credential resolution never falls through to untyped strings.
type PrincipalKind string

const (
	PrincipalKindOrganization PrincipalKind = "organization"
	PrincipalKindUser         PrincipalKind = "user"
)

// Principal is the request-scoped authenticated caller, either an
// organization or one of its users. Exactly one of Org/User is set,
// matching Kind. Principals are never persisted.
type Principal struct {
	Kind PrincipalKind
	Org  *Organization
	User *User
}

// OrgPrincipal wraps an organization as a principal.
func OrgPrincipal(org *Organization) *Principal {
	return &Principal{Kind: PrincipalKindOrganization, Org: org}
}

// UserPrincipal wraps a user as a principal.
func UserPrincipal(user *User) *Principal {
	return &Principal{Kind: PrincipalKindUser, User: user}
}
