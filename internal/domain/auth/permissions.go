package auth

// Permission is a capability key from the fixed catalog below. Values outside
// the catalog are never produced by ParsePermission.
type Permission string

// PermissionGroup is the feature area a permission belongs to.
type PermissionGroup string

const (
	GroupGeneral        PermissionGroup = "General"
	GroupSchedule       PermissionGroup = "Schedule"
	GroupEmployees      PermissionGroup = "Employees"
	GroupReports        PermissionGroup = "Reports"
	GroupLeaves         PermissionGroup = "Leaves"
	GroupFinances       PermissionGroup = "Finances"
	GroupSurveys        PermissionGroup = "Surveys"
	GroupRequests       PermissionGroup = "Requests"
	GroupAdministration PermissionGroup = "Administration"
)

const (
	PermDashboardView     Permission = "dashboard.view"
	PermAnnouncementsView Permission = "announcements.view"
	PermProfileEdit       Permission = "profile.edit"

	PermScheduleView    Permission = "schedule.view"
	PermScheduleEdit    Permission = "schedule.edit"
	PermSchedulePublish Permission = "schedule.publish"

	PermEmployeesView   Permission = "employees.view"
	PermEmployeesCreate Permission = "employees.create"
	PermEmployeesEdit   Permission = "employees.edit"
	PermEmployeesDelete Permission = "employees.delete"

	PermReportsView   Permission = "reports.view"
	PermReportsExport Permission = "reports.export"

	PermLeavesRequest Permission = "leaves.request"
	PermLeavesViewAll Permission = "leaves.view_all"
	PermLeavesApprove Permission = "leaves.approve"

	PermPayStubsView    Permission = "finances.paystubs.view"
	PermExpensesSubmit  Permission = "finances.expenses.submit"
	PermExpensesApprove Permission = "finances.expenses.approve"
	PermBenefitsManage  Permission = "finances.benefits.manage"

	PermSurveysRespond Permission = "surveys.respond"
	PermSurveysCreate  Permission = "surveys.create"
	PermSurveysResults Permission = "surveys.results"

	PermRequestsSubmit  Permission = "requests.submit"
	PermRequestsViewAll Permission = "requests.view_all"
	PermRequestsApprove Permission = "requests.approve"

	PermRolesManage         Permission = "admin.roles.manage"
	PermAuditView           Permission = "admin.audit.view"
	PermSettingsManage      Permission = "admin.settings.manage"
	PermAnnouncementsManage Permission = "admin.announcements.manage"
	PermRecruitmentManage   Permission = "admin.recruitment.manage"
)

const (
	RoleAdmin    = "Admin"
	RoleHRStaff  = "HR Staff"
	RoleManager  = "Manager"
	RoleEmployee = "Employee"
)

type CatalogGroup struct {
	Group       PermissionGroup `json:"group"`
	Permissions []Permission    `json:"permissions"`
}

var catalog = []CatalogGroup{
	{Group: GroupGeneral, Permissions: []Permission{PermDashboardView, PermAnnouncementsView, PermProfileEdit}},
	{Group: GroupSchedule, Permissions: []Permission{PermScheduleView, PermScheduleEdit, PermSchedulePublish}},
	{Group: GroupEmployees, Permissions: []Permission{PermEmployeesView, PermEmployeesCreate, PermEmployeesEdit, PermEmployeesDelete}},
	{Group: GroupReports, Permissions: []Permission{PermReportsView, PermReportsExport}},
	{Group: GroupLeaves, Permissions: []Permission{PermLeavesRequest, PermLeavesViewAll, PermLeavesApprove}},
	{Group: GroupFinances, Permissions: []Permission{PermPayStubsView, PermExpensesSubmit, PermExpensesApprove, PermBenefitsManage}},
	{Group: GroupSurveys, Permissions: []Permission{PermSurveysRespond, PermSurveysCreate, PermSurveysResults}},
	{Group: GroupRequests, Permissions: []Permission{PermRequestsSubmit, PermRequestsViewAll, PermRequestsApprove}},
	{Group: GroupAdministration, Permissions: []Permission{PermRolesManage, PermAuditView, PermSettingsManage, PermAnnouncementsManage, PermRecruitmentManage}},
}

var permissionIndex = buildIndex()

func buildIndex() map[Permission]PermissionGroup {
	idx := map[Permission]PermissionGroup{}
	for _, g := range catalog {
		for _, p := range g.Permissions {
			idx[p] = g.Group
		}
	}
	return idx
}

// AllPermissions returns the catalog in display order. Each call returns a new slice.
func AllPermissions() []Permission {
	out := make([]Permission, 0, len(permissionIndex))
	for _, g := range catalog {
		out = append(out, g.Permissions...)
	}
	return out
}

// Groups returns a copy of the catalog grouped by feature area.
func Groups() []CatalogGroup {
	out := make([]CatalogGroup, 0, len(catalog))
	for _, g := range catalog {
		perms := make([]Permission, len(g.Permissions))
		copy(perms, g.Permissions)
		out = append(out, CatalogGroup{Group: g.Group, Permissions: perms})
	}
	return out
}

func GroupPermissions(group PermissionGroup) ([]Permission, bool) {
	for _, g := range catalog {
		if g.Group == group {
			perms := make([]Permission, len(g.Permissions))
			copy(perms, g.Permissions)
			return perms, true
		}
	}
	return nil, false
}

func ParsePermission(value string) (Permission, bool) {
	p := Permission(value)
	_, ok := permissionIndex[p]
	return p, ok
}

func ParseGroup(value string) (PermissionGroup, bool) {
	for _, g := range catalog {
		if string(g.Group) == value {
			return g.Group, true
		}
	}
	return "", false
}

func GroupOf(p Permission) (PermissionGroup, bool) {
	g, ok := permissionIndex[p]
	return g, ok
}

type RoleDefinition struct {
	Name        string
	Description string
	IsAdmin     bool
	Permissions []Permission
}

// DefaultRoles are seeded into an empty tenant. Admin always carries the full catalog.
func DefaultRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Name:        RoleAdmin,
			Description: "Full access to every feature; read-only",
			IsAdmin:     true,
			Permissions: AllPermissions(),
		},
		{
			Name:        RoleHRStaff,
			Description: "Manages employees, leave, finances and surveys",
			Permissions: []Permission{
				PermDashboardView, PermAnnouncementsView, PermProfileEdit,
				PermScheduleView, PermScheduleEdit, PermSchedulePublish,
				PermEmployeesView, PermEmployeesCreate, PermEmployeesEdit,
				PermReportsView, PermReportsExport,
				PermLeavesRequest, PermLeavesViewAll, PermLeavesApprove,
				PermPayStubsView, PermExpensesSubmit, PermExpensesApprove, PermBenefitsManage,
				PermSurveysRespond, PermSurveysCreate, PermSurveysResults,
				PermRequestsSubmit, PermRequestsViewAll, PermRequestsApprove,
				PermAuditView, PermAnnouncementsManage, PermRecruitmentManage,
			},
		},
		{
			Name:        RoleManager,
			Description: "Approves team requests and manages schedules",
			Permissions: []Permission{
				PermDashboardView, PermAnnouncementsView, PermProfileEdit,
				PermScheduleView, PermScheduleEdit,
				PermEmployeesView,
				PermReportsView,
				PermLeavesRequest, PermLeavesViewAll, PermLeavesApprove,
				PermPayStubsView, PermExpensesSubmit, PermExpensesApprove,
				PermSurveysRespond, PermSurveysResults,
				PermRequestsSubmit, PermRequestsViewAll, PermRequestsApprove,
			},
		},
		{
			Name:        RoleEmployee,
			Description: "Self-service access",
			Permissions: []Permission{
				PermDashboardView, PermAnnouncementsView, PermProfileEdit,
				PermScheduleView,
				PermLeavesRequest,
				PermPayStubsView, PermExpensesSubmit,
				PermSurveysRespond,
				PermRequestsSubmit,
			},
		},
	}
}
