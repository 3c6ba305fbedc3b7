package service

import (
	"fmt"

	"github.com/lumenlearn/growthloop/internal/app/model"
)

// Trigger names the UI moments that can surface a growth loop.
const (
	TriggerResultsViewed   = "results_viewed"
	TriggerSessionComplete = "session_complete"
	TriggerStreakMilestone = "streak_milestone"
	TriggerDeckShared      = "deck_shared"
)

// Selection reasons reported for observability.
const (
	ReasonCooldownClear = "cooldown_clear"
	ReasonNeverShown    = "never_shown"
	ReasonFallback      = "fallback"
)

// defaultLoop is returned when every candidate is cooling down. The
// orchestrator never answers "no loop".
const defaultLoop = model.LoopShareProgress

// cooldownHours is the minimum gap, per loop, between presentations to the
// same actor.
var cooldownHours = map[model.Loop]float64{
	model.LoopBuddyChallenge: 72,
	model.LoopCelebrate:      24,
	model.LoopStudyGroup:     168,
	model.LoopShareProgress:  24,
}

// candidates maps (trigger, role) to loops in priority order. Roles absent
// for a trigger fall through to the default loop.
var candidates = map[string]map[model.Role][]model.Loop{
	TriggerResultsViewed: {
		model.RoleStudent:  {model.LoopBuddyChallenge, model.LoopShareProgress},
		model.RoleGuardian: {model.LoopCelebrate, model.LoopShareProgress},
		model.RoleEducator: {model.LoopStudyGroup, model.LoopShareProgress},
	},
	TriggerSessionComplete: {
		model.RoleStudent:  {model.LoopStudyGroup, model.LoopBuddyChallenge, model.LoopShareProgress},
		model.RoleGuardian: {model.LoopCelebrate},
		model.RoleEducator: {model.LoopStudyGroup},
	},
	TriggerStreakMilestone: {
		model.RoleStudent:  {model.LoopCelebrate, model.LoopBuddyChallenge},
		model.RoleGuardian: {model.LoopCelebrate},
		model.RoleEducator: {model.LoopShareProgress},
	},
	TriggerDeckShared: {
		model.RoleStudent:  {model.LoopStudyGroup, model.LoopShareProgress},
		model.RoleGuardian: {model.LoopShareProgress},
		model.RoleEducator: {model.LoopStudyGroup, model.LoopShareProgress},
	},
}

// Decision is the orchestrator's side-effect-free answer.
type Decision struct {
	Loop      model.Loop `json:"loop"`
	Reason    string     `json:"reason"`
	Rationale string     `json:"rationale"`
}

// LoopOrchestrator selects the next eligible growth loop for a trigger.
// It only reads cooldown state; recording presentations is the caller's job.
type LoopOrchestrator struct{}

// NewLoopOrchestrator returns a stateless orchestrator.
func NewLoopOrchestrator() *LoopOrchestrator {
	return &LoopOrchestrator{}
}

// Next walks the candidate loops for (trigger, role) in priority order and
// returns the first one whose cooldown has elapsed. elapsed maps loop to hours
// since last presentation; a missing entry means the loop was never shown and
// is therefore eligible.
func (o *LoopOrchestrator) Next(trigger string, role model.Role, subject string, elapsed map[model.Loop]float64) Decision {
	for _, loop := range candidates[trigger][role] {
		hours, shown := elapsed[loop]
		if !shown {
			return Decision{
				Loop:      loop,
				Reason:    ReasonNeverShown,
				Rationale: fmt.Sprintf("%s never shown to this %s", loop, role),
			}
		}
		if hours >= cooldownHours[loop] {
			return Decision{
				Loop:      loop,
				Reason:    ReasonCooldownClear,
				Rationale: fmt.Sprintf("%s cooldown clear (%.1fh elapsed, %.0fh required)", loop, hours, cooldownHours[loop]),
			}
		}
	}

	return Decision{
		Loop:      defaultLoop,
		Reason:    ReasonFallback,
		Rationale: fmt.Sprintf("all candidates for %q cooling down, forcing %s", trigger, defaultLoop),
	}
}
