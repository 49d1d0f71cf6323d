package core

import "strings"

// Filter narrows the employee list the admin console shows.
type Filter struct {
	Department string
	Search     string
}

func (f Filter) Match(emp Employee) bool {
	if dept := strings.TrimSpace(f.Department); dept != "" && !strings.EqualFold(dept, emp.Department) {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	for _, field := range []string{emp.FirstName, emp.LastName, emp.FullName(), emp.Email, emp.Position} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func FilterEmployees(list []Employee, f Filter) []Employee {
	out := make([]Employee, 0, len(list))
	for _, emp := range list {
		if f.Match(emp) {
			out = append(out, emp)
		}
	}
	return out
}

// Departments returns the distinct non-empty departments in first-seen order.
func Departments(list []Employee) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, emp := range list {
		if emp.Department == "" {
			continue
		}
		if _, ok := seen[emp.Department]; ok {
			continue
		}
		seen[emp.Department] = struct{}{}
		out = append(out, emp.Department)
	}
	return out
}
