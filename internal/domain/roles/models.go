package roles

import (
	"time"

	"hrmaccess/internal/domain/auth"
)

type Role struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenantId"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Permissions []auth.Permission `json:"permissions"`
	IsAdmin     bool              `json:"isAdmin"`
	Version     int               `json:"version"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func (r Role) Has(p auth.Permission) bool {
	for _, candidate := range r.Permissions {
		if candidate == p {
			return true
		}
	}
	return false
}

// Normalize drops duplicates and unknown keys and returns the set in catalog order.
func Normalize(perms []auth.Permission) []auth.Permission {
	set := make(map[auth.Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	out := make([]auth.Permission, 0, len(set))
	for _, p := range auth.AllPermissions() {
		if _, ok := set[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func FindByName(list []Role, name string) (Role, bool) {
	for _, r := range list {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

func FindAdmin(list []Role) (Role, bool) {
	for _, r := range list {
		if r.IsAdmin {
			return r, true
		}
	}
	return Role{}, false
}

func FindByID(list []Role, id string) (Role, bool) {
	for _, r := range list {
		if r.ID == id {
			return r, true
		}
	}
	return Role{}, false
}
