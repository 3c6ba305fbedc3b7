package service

import (
	"fmt"

	"github.com/lumenlearn/growthloop/internal/app/model"
)

// RewardPreview describes the incentive attached to a loop, if any.
type RewardPreview struct {
	Headline string `json:"headline"`
	Detail   string `json:"detail"`
}

// Composition is the share-ready output for a selected loop.
type Composition struct {
	Copy           string            `json:"copy"`
	DeepLinkParams map[string]string `json:"deep_link_params"`
	RewardPreview  *RewardPreview    `json:"reward_preview,omitempty"`
	Rationale      string            `json:"rationale"`
}

// copyTemplates is the role→loop share copy table. %s interpolates the
// subject where the template expects one.
var copyTemplates = map[model.Role]map[model.Loop]string{
	model.RoleStudent: {
		model.LoopBuddyChallenge: "Think you can beat my %s score? Take the challenge!",
		model.LoopStudyGroup:     "I'm studying %s — join my group and we'll keep each other on track.",
		model.LoopShareProgress:  "Check out my %s progress this week!",
	},
	model.RoleGuardian: {
		model.LoopCelebrate:     "Big win in %s today — come celebrate with us!",
		model.LoopShareProgress: "Proud of the %s progress happening here. Take a look!",
	},
	model.RoleEducator: {
		model.LoopStudyGroup:    "My class is working through %s — join the study group.",
		model.LoopShareProgress: "Here's how my students are doing in %s.",
	},
}

// rewardPreviews is keyed by loop alone; loops without an incentive are absent.
var rewardPreviews = map[model.Loop]RewardPreview{
	model.LoopBuddyChallenge: {
		Headline: "Both of you get a free week of Plus",
		Detail:   "Unlocked when your buddy finishes their first challenge.",
	},
	model.LoopStudyGroup: {
		Headline: "Bonus practice packs for the whole group",
		Detail:   "Awarded once three members complete a session.",
	},
}

// PersonalizationComposer renders share copy and reward previews. It performs
// no I/O and is a pure function of its inputs.
type PersonalizationComposer struct{}

// NewPersonalizationComposer returns a stateless composer.
func NewPersonalizationComposer() *PersonalizationComposer {
	return &PersonalizationComposer{}
}

// Compose produces copy for (role, loop), falling back to a generic template
// that still names the loop and subject. It never returns empty copy.
func (c *PersonalizationComposer) Compose(intent string, role model.Role, subject string, loop model.Loop) Composition {
	if subject == "" {
		subject = "learning"
	}

	copyText := ""
	rationale := fmt.Sprintf("template for %s/%s", role, loop)
	if tmpl, ok := copyTemplates[role][loop]; ok {
		copyText = fmt.Sprintf(tmpl, subject)
	} else {
		copyText = fmt.Sprintf("Join me for a %s around %s!", loop.DisplayName(), subject)
		rationale = fmt.Sprintf("generic fallback for %s/%s", role, loop)
	}

	deepLink := map[string]string{
		"loop":    string(loop),
		"subject": subject,
	}
	if intent != "" {
		deepLink["intent"] = intent
	}

	comp := Composition{
		Copy:           copyText,
		DeepLinkParams: deepLink,
		Rationale:      rationale,
	}
	if preview, ok := rewardPreviews[loop]; ok {
		comp.RewardPreview = &preview
	}
	return comp
}
