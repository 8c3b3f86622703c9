package domain

import "maps"

type Role string

const (
	RoleMerchant Role = "merchant"
	RoleCustomer Role = "customer"
)

// Profile is the opaque payload returned by the user-profile service.
type Profile map[string]any

// Role reads the "role" attribute of the profile.
func (p Profile) Role() Role {
	r, _ := p["role"].(string)
	return Role(r)
}

// Identity is the authenticated caller of a single request. It is never
// persisted.
type Identity struct {
	SubjectID  string
	Role       Role
	Attributes map[string]any
}

func NewIdentity(subjectID string, profile Profile) Identity {
	return Identity{
		SubjectID:  subjectID,
		Role:       profile.Role(),
		Attributes: maps.Clone(map[string]any(profile)),
	}
}

func (i Identity) IsMerchant() bool {
	return i.Role == RoleMerchant
}
