package domain

import "strings"

type Role uint8

const (
	RoleNone Role = iota
	RoleAdmin
	RoleBank
	RoleExporter
	RoleImporter
	RoleLogistics
)

var roleNames = map[Role]string{
	RoleNone:      "NONE",
	RoleAdmin:     "ADMIN",
	RoleBank:      "BANK",
	RoleExporter:  "EXPORTER",
	RoleImporter:  "IMPORTER",
	RoleLogistics: "LOGISTICS",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

func (r Role) Valid() bool {
	return r >= RoleAdmin && r <= RoleLogistics
}

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for role, name := range roleNames {
		if role != RoleNone && name == s {
			return role, true
		}
	}
	return RoleNone, false
}

// RoleSet is the set of roles held by one account, one bit per role.
type RoleSet uint8

func (s RoleSet) Has(r Role) bool {
	if !r.Valid() {
		return false
	}
	return s&(1<<r) != 0
}

func (s RoleSet) With(r Role) RoleSet {
	if !r.Valid() {
		return s
	}
	return s | 1<<r
}

func (s RoleSet) Roles() []Role {
	var out []Role
	for r := RoleAdmin; r <= RoleLogistics; r++ {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s RoleSet) Names() []string {
	roles := s.Roles()
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	return names
}
