package model

// Loop identifies a growth mechanic. The set is closed: adding a loop means
// touching the orchestrator tables and composer templates, which is intentional.
type Loop string

const (
	LoopBuddyChallenge Loop = "buddy_challenge"
	LoopCelebrate      Loop = "celebrate"
	LoopStudyGroup     Loop = "study_group"
	LoopShareProgress  Loop = "share_progress"
)

// Loops lists every known loop.
var Loops = []Loop{LoopBuddyChallenge, LoopCelebrate, LoopStudyGroup, LoopShareProgress}

// ParseLoop returns the loop for raw, or false when raw names no known loop.
func ParseLoop(raw string) (Loop, bool) {
	switch Loop(raw) {
	case LoopBuddyChallenge, LoopCelebrate, LoopStudyGroup, LoopShareProgress:
		return Loop(raw), true
	}
	return "", false
}

// DisplayName is the human-readable loop name used in share copy.
func (l Loop) DisplayName() string {
	switch l {
	case LoopBuddyChallenge:
		return "Buddy Challenge"
	case LoopCelebrate:
		return "Celebration"
	case LoopStudyGroup:
		return "Study Group"
	case LoopShareProgress:
		return "Progress Share"
	default:
		return string(l)
	}
}

// Role is the actor role seen by the orchestrator and composer.
type Role string

const (
	RoleStudent  Role = "student"
	RoleGuardian Role = "guardian"
	RoleEducator Role = "educator"
)

// Roles lists every known role.
var Roles = []Role{RoleStudent, RoleGuardian, RoleEducator}

// ParseRole returns the role for raw, or false when raw names no known role.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleStudent, RoleGuardian, RoleEducator:
		return Role(raw), true
	}
	return "", false
}
