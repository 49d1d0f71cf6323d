package core

import "time"

const (
	EmployeeStatusActive     = "active"
	EmployeeStatusTerminated = "terminated"
)

// Employee is the directory's view of a person. Rows are owned by the HR
// records module; this service only reads them.
type Employee struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Email      string    `json:"email"`
	Department string    `json:"department"`
	Position   string    `json:"position"`
	IsAdmin    bool      `json:"isAdmin"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (e Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}
