package auth

var (
	// DefaultIDClaimKeys are tried in order to resolve the subject identifier
	DefaultIDClaimKeys = []string{"AccountId", "UserId", "userId", "sub"}
	// DefaultNameClaimKeys are tried in order to resolve the display name
	DefaultNameClaimKeys = []string{"FullName", "Name", "UserName", "name", "userName", "fullname"}
	// DefaultEmailClaimKeys are tried in order to resolve the email
	DefaultEmailClaimKeys = []string{"Email", "email"}
	// DefaultRoleClaimKeys are tried in order to resolve the role
	DefaultRoleClaimKeys = []string{"Role", "role"}
)

// ClaimsMapper normalizes heterogeneous claim bags into an Identity.
// Empty key lists fall back to the Default*ClaimKeys.
type ClaimsMapper struct {
	IDClaimKeys    []string
	NameClaimKeys  []string
	EmailClaimKeys []string
	RoleClaimKeys  []string
}

// DefaultClaimsMapper uses the default key lists.
var DefaultClaimsMapper = &ClaimsMapper{}

// MapClaims maps claims with the DefaultClaimsMapper
func MapClaims(claims ClaimSet) Identity {
	return DefaultClaimsMapper.Map(claims)
}

// Map never fails: missing or oddly typed claims degrade to empty fields and
// RoleStudent.
func (m *ClaimsMapper) Map(claims ClaimSet) Identity {
	if m == nil {
		m = DefaultClaimsMapper
	}

	identity := Identity{
		ID:    claims.String(m.idClaimKeys()...),
		Name:  claims.String(m.nameClaimKeys()...),
		Email: claims.String(m.emailClaimKeys()...),
		Role:  m.extractRole(claims),
	}

	if identity.Role == RoleStudent && identity.ID != "" {
		identity.StudentNumber = identity.ID
	}

	return identity
}

func (m *ClaimsMapper) extractRole(claims ClaimSet) Role {
	values := claims.Strings(m.roleClaimKeys()...)
	if len(values) == 0 {
		return RoleStudent
	}
	return HighestRole(values...)
}

func (m *ClaimsMapper) idClaimKeys() []string {
	return keysOrDefault(m.IDClaimKeys, DefaultIDClaimKeys)
}

func (m *ClaimsMapper) nameClaimKeys() []string {
	return keysOrDefault(m.NameClaimKeys, DefaultNameClaimKeys)
}

func (m *ClaimsMapper) emailClaimKeys() []string {
	return keysOrDefault(m.EmailClaimKeys, DefaultEmailClaimKeys)
}

func (m *ClaimsMapper) roleClaimKeys() []string {
	return keysOrDefault(m.RoleClaimKeys, DefaultRoleClaimKeys)
}

func keysOrDefault(keys, defaults []string) []string {
	if out := uniqueKeys(keys...); len(out) > 0 {
		return out
	}
	return defaults
}
