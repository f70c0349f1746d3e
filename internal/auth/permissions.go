package auth

const (
	PermReportRead     = "report.read"
	PermRosterManage   = "roster.manage"
	PermPeriodReset    = "period.reset"
	PermActivityRecord = "activity.record"
	PermSettingsManage = "settings.manage"
)

const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleRecorder = "recorder"
	RoleViewer   = "viewer"
)

// rolePermissions is the builtin grant table. Admin tokens are not scoped to
// one organization.
var rolePermissions = map[string][]string{
	RoleAdmin:    {PermReportRead, PermRosterManage, PermPeriodReset, PermActivityRecord, PermSettingsManage},
	RoleManager:  {PermReportRead, PermRosterManage, PermPeriodReset, PermActivityRecord},
	RoleRecorder: {PermActivityRecord},
	RoleViewer:   {PermReportRead},
}

// KnownRole reports whether role has an entry in the grant table.
func KnownRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}
