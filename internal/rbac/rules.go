package rbac

// Roles known to the system.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Coarse permission table per role. Resource-level rules (ownership,
// published-only, own-records-only) live in policy.go; routes gate on these
// first so unauthenticated or mis-roled callers never reach a handler.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"quiz:view",
		"attempt:create",
		"attempt:submit",
		"attempt:view-own",
		"analytics:view-own",
		"user:change_password",
	},
	RoleTeacher: {
		"quiz:view",
		"quiz:create",
		"quiz:update-own",
		"quiz:delete-own",
		"attempt:view-all",
		"attempt:grade",
		"analytics:view-own",
		"analytics:view-quiz",
		"users:bulk_upsert",
		"users:list",
		"user:change_password",
	},
	RoleAdmin: {
		"*", // everything
	},
}
