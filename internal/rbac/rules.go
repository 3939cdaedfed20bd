package rbac

const (
	PermAttemptStart    = "attempt:start"
	PermAttemptAnswer   = "attempt:answer"
	PermAttemptComplete = "attempt:complete"
	PermAttemptViewOwn  = "attempt:view-own"
	PermAttemptViewAll  = "attempt:view-all"
	PermTestViewAssign  = "test:view-assigned"
	PermTestImport      = "test:import"
	PermTestAssign      = "test:assign"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"student": {
		PermAttemptStart,
		PermAttemptAnswer,
		PermAttemptComplete,
		PermAttemptViewOwn,
		PermTestViewAssign,
	},
	"teacher": {
		"test:*",
		PermAttemptViewAll,
	},
	"admin": {
		"*",
	},
}
