package rbac

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

const (
	PermQuizCreate       = "quiz:create"
	PermQuizView         = "quiz:view"
	PermQuizArchive      = "quiz:archive"
	PermAttemptStart     = "attempt:start"
	PermAttemptAnswer    = "attempt:answer"
	PermAttemptSubmit    = "attempt:submit"
	PermAttemptViewOwn   = "attempt:view-own"
	PermAttemptViewAll   = "attempt:view-all"
	PermGradebookViewOwn = "gradebook:view-own"
	PermGradebookViewAll = "gradebook:view-all"
	PermUserCreate       = "users:create"
	PermEventsView       = "events:view"
	// PermCatalogEditAny allows rewriting quizzes written by other authors.
	PermCatalogEditAny = "catalog:edit-any"
)

// RolePermissions is the default policy. A trailing * matches a prefix.
var RolePermissions = map[string][]string{
	RoleStudent: {
		PermQuizView,
		PermAttemptStart,
		PermAttemptAnswer,
		PermAttemptSubmit,
		PermAttemptViewOwn,
		PermGradebookViewOwn,
	},
	RoleTeacher: {
		"quiz:*",
		PermAttemptViewAll,
		PermGradebookViewAll,
	},
	RoleAdmin: {
		"*",
	},
}

// ValidRole reports whether role has an entry in the default policy.
func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
