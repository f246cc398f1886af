// Package domain contains the core concepts of the rental messaging system.
package domain

type ProfileType string

const (
	ProfileTenant   ProfileType = "tenant"
	ProfileLandlord ProfileType = "landlord"
)

// ProfileRef identifies one side of a tenant/landlord relationship.
type ProfileRef struct {
	ID   string
	Name string
	Type ProfileType
}

func (p ProfileRef) IsZero() bool {
	return p.ID == ""
}
