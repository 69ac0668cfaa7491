package rbac

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role string
}

// Action names every operation the policy decides on.
type Action string

const (
	ActionQuizCreate    Action = "quiz.create"
	ActionQuizRead      Action = "quiz.read"
	ActionQuizUpdate    Action = "quiz.update"
	ActionQuizDelete    Action = "quiz.delete"
	ActionAttemptStart  Action = "attempt.start"
	ActionAttemptSubmit Action = "attempt.submit"
	ActionAttemptRead   Action = "attempt.read"
	ActionAttemptGrade  Action = "attempt.grade"
	ActionAnalyticsRead Action = "analytics.read"
)

// Resource types.
const (
	ResourceQuiz      = "quiz"
	ResourceAttempt   = "attempt"
	ResourceAnalytics = "analytics"
)

// Resource is the minimal view the policy needs of the thing being acted
// on. Attempt and analytics resources carry the quiz's ownership fields so
// teacher visibility can be decided without a second fetch.
type Resource struct {
	Type          string
	OwnerID       string   // quiz owner
	Collaborators []string // quiz collaborators
	QuizStatus    string   // draft|published|archived
	SubjectUserID string   // whose attempt/analytics record this is
}

// Decide is the total access decision: every (role, action, resource-state)
// combination lands in an explicit arm, and anything unmatched is a deny.
// Callers translate a false into a Forbidden that leaks nothing else.
func Decide(actor Actor, action Action, res Resource) bool {
	switch actor.Role {
	case RoleAdmin:
		return true
	case RoleTeacher:
		return decideTeacher(actor, action, res)
	case RoleStudent:
		return decideStudent(actor, action, res)
	default:
		return false
	}
}

func decideTeacher(actor Actor, action Action, res Resource) bool {
	owns := res.OwnerID == actor.ID || contains(res.Collaborators, actor.ID)
	switch action {
	case ActionQuizCreate:
		return true
	case ActionQuizRead:
		// Quiz definitions are readable across teachers; analytics are not.
		return true
	case ActionQuizUpdate, ActionQuizDelete:
		return owns
	case ActionAttemptRead, ActionAttemptGrade:
		return owns || res.SubjectUserID == actor.ID
	case ActionAnalyticsRead:
		return owns || res.SubjectUserID == actor.ID
	case ActionAttemptStart, ActionAttemptSubmit:
		// Taking quizzes is a student activity; owners previewing their own
		// quiz still go through the student flow on a separate account.
		return false
	default:
		return false
	}
}

func decideStudent(actor Actor, action Action, res Resource) bool {
	switch action {
	case ActionQuizRead, ActionAttemptStart:
		return res.Type == ResourceQuiz && res.QuizStatus == "published"
	case ActionAttemptSubmit, ActionAttemptRead:
		return res.Type == ResourceAttempt && res.SubjectUserID == actor.ID
	case ActionAnalyticsRead:
		return res.Type == ResourceAnalytics && res.SubjectUserID == actor.ID
	case ActionQuizCreate, ActionQuizUpdate, ActionQuizDelete, ActionAttemptGrade:
		return false
	default:
		return false
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
