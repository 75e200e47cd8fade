package gmail

import (
	"strings"

	"github.com/teemow/mailagent/internal/progress"
)

// Default folder suggestions offered when the account has no usable labels.
var defaultFolders = []progress.FolderRule{
	{Name: "Newsletters", Query: "list:*", NotifyTelegram: false},
	{Name: "Receipts", Query: "subject:(receipt OR invoice OR order)", NotifyTelegram: false},
	{Name: "Important", Query: "is:important", NotifyTelegram: true},
}

// SuggestFolders derives folder rules from the account's existing labels.
// Each user label becomes a rule scoped to that label; when no labels
// exist, a small default set is returned instead.
func SuggestFolders(labels []Label) []progress.FolderRule {
	if len(labels) == 0 {
		rules := make([]progress.FolderRule, len(defaultFolders))
		copy(rules, defaultFolders)
		return rules
	}

	rules := make([]progress.FolderRule, 0, len(labels))
	for _, l := range labels {
		rules = append(rules, progress.FolderRule{
			Name:  l.Name,
			Query: "label:" + quoteLabel(l.Name),
		})
	}
	return rules
}

// quoteLabel formats a label name for use in a Gmail search query.
// Nested labels use slashes and spaces become dashes, matching how the
// Gmail search syntax addresses labels.
func quoteLabel(name string) string {
	return strings.ReplaceAll(name, " ", "-")
}
