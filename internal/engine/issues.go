package engine

import (
	"context"
	"regexp"

	"olympus/internal/domain"
	"olympus/internal/jira"
)

var (
	pmIssuePattern        = regexp.MustCompile(`(?i)product.?manager`)
	architectIssuePattern = regexp.MustCompile(`(?i)architect`)
	inProgressPattern     = regexp.MustCompile(`(?i)in.?progress|start`)
)

// matchIssue picks the issue whose summary matches the pattern, falling back
// to a fixed position in the generated list. The positional fallback assumes
// the model kept the prompt's role order; a renamed or reordered story can
// select the wrong issue. Returns nil when no candidate exists.
func matchIssue(issues []domain.Issue, pattern *regexp.Regexp, fallbackIndex int) *domain.Issue {
	for i := range issues {
		if pattern.MatchString(issues[i].Summary) {
			return &issues[i]
		}
	}
	if fallbackIndex >= 0 && fallbackIndex < len(issues) {
		return &issues[fallbackIndex]
	}
	return nil
}

// transitionToInProgress finds an "in progress"-like transition on the issue
// and executes it. Returns whether the transition ran.
func transitionToInProgress(ctx context.Context, client *jira.Client, issueKey string) (bool, error) {
	transitions, err := client.Transitions(ctx, issueKey)
	if err != nil {
		return false, err
	}
	for _, t := range transitions {
		if inProgressPattern.MatchString(t.Name) {
			if err := client.DoTransition(ctx, issueKey, t.ID); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}
