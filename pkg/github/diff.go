package github

import (
	"strings"

	"hackops/pkg/identity"
	"hackops/pkg/roster"
)

// Diff computes the collaborator changes for one repository.
//
//	ToAdd    = desired - actual
//	ToRemove = actual - desired - protected
//
// Handles compare case-insensitively. Adds use the desired spelling and removes
// use the actual spelling. Both lists are sorted.
func Diff(actual, desired, protected identity.Set) CollaboratorPlan {
	plan := CollaboratorPlan{
		Desired: desired.Len(),
		Actual:  actual.Len(),
	}

	for _, h := range desired.Sorted() {
		if !actual.Contains(h) {
			plan.ToAdd = append(plan.ToAdd, h)
		}
	}

	for _, h := range actual.Sorted() {
		if desired.Contains(h) {
			continue
		}
		if protected.Contains(h) {
			plan.Preserved = append(plan.Preserved, h)
			continue
		}
		plan.ToRemove = append(plan.ToRemove, h)
	}

	return plan
}

// DesiredCollaborators resolves the team's members into handles. Members whose
// profile link cannot be resolved are returned separately and never fail the call.
func DesiredCollaborators(extractor *identity.Extractor, team roster.Team) (identity.Set, []UnresolvedMember) {
	desired := identity.NewSet()
	var unresolved []UnresolvedMember

	for _, m := range team.Members {
		handle, ok := extractor.Extract(m.ProfileLink)
		if !ok {
			unresolved = append(unresolved, UnresolvedMember{
				Name:        memberName(m),
				Email:       m.Email,
				ProfileLink: m.ProfileLink,
			})
			continue
		}
		desired.Add(handle)
	}

	return desired, unresolved
}

func memberName(m roster.Member) string {
	if name := strings.TrimSpace(m.Name); name != "" {
		return name
	}
	if m.Email != "" {
		return m.Email
	}
	return "Unknown"
}
