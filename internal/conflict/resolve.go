package conflict

import (
	"github.com/Nireus79/Socrates2-sub000/internal/model"
)

// Resolve applies res to an open conflict and returns the updated
// conflict. The input is not modified.
//
// keep_old and both_valid may be recorded as an override, which accepts
// the conflict as-is; use_new and manual_edit always resolve it.
func Resolve(c model.Conflict, res model.Resolution, now string) (model.Conflict, error) {
	if c.Status != model.StatusOpen {
		return model.Conflict{}, model.InvalidState("conflict %s is already %s", c.ID, c.Status)
	}
	decision, err := model.ParseDecision(string(res.Decision))
	if err != nil {
		return model.Conflict{}, err
	}
	if res.Override && decision != model.DecisionKeepOld && decision != model.DecisionBothValid {
		return model.Conflict{}, model.Invalid("override", "only keep_old or both_valid can be recorded as an override")
	}

	res.Decision = decision
	out := c
	out.Resolution = &res
	out.ResolvedAt = &now
	out.Status = model.StatusResolved
	if res.Override {
		out.Status = model.StatusOverridden
	}
	return out, nil
}
