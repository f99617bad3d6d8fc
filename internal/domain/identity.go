package domain

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Identity is the authenticated caller as established by the auth
// middleware. Ownership checks trust it.
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess reports whether the identity may read or mutate a resource
// owned by ownerID.
func (i Identity) CanAccess(ownerID string) bool {
	return i.UserID == ownerID || i.IsAdmin()
}
