package changes

import (
	"sort"
	"strconv"
	"strings"
)

// IssueDetail is the per-issue diff carried in the manifest summary.
type IssueDetail struct {
	IssueKey        string  `json:"issue_key"`
	BeforeCount     int     `json:"before_count"`
	AfterCount      int     `json:"after_count"`
	Added           []int64 `json:"added_article_ids"`
	Removed         []int64 `json:"removed_article_ids"`
	NotifiableAdded []int64 `json:"notifiable_added_article_ids"`
	BackfillAdded   []int64 `json:"backfill_added_article_ids"`
}

// InPressDetail is the per-journal in-press diff carried in the summary.
type InPressDetail struct {
	JournalID       int64   `json:"journal_id"`
	BeforeCount     int     `json:"before_count"`
	AfterCount      int     `json:"after_count"`
	Added           []int64 `json:"added_article_ids"`
	Removed         []int64 `json:"removed_article_ids"`
	NotifiableAdded []int64 `json:"notifiable_added_article_ids"`
	BackfillAdded   []int64 `json:"backfill_added_article_ids"`
}

// Diff is the raw membership difference between two snapshots, before
// notifiable/backfill classification.
type Diff struct {
	ChangedIssueKeys  []string
	ChangedInPressIDs []int64
	Added             []int64
	Removed           []int64
	IssueDetails      []IssueDetail
	InPressDetails    []InPressDetail
}

func sortedIDs(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func setDiff(before, after map[int64]bool) (added, removed []int64) {
	addedSet := make(map[int64]bool)
	removedSet := make(map[int64]bool)
	for id := range after {
		if !before[id] {
			addedSet[id] = true
		}
	}
	for id := range before {
		if !after[id] {
			removedSet[id] = true
		}
	}
	return sortedIDs(addedSet), sortedIDs(removedSet)
}

func setsEqual(a, b map[int64]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

// issueKeyLess orders "journal:issue" keys numerically.
func issueKeyLess(a, b string) bool {
	aj, ai := splitIssueKey(a)
	bj, bi := splitIssueKey(b)
	if aj != bj {
		return aj < bj
	}
	return ai < bi
}

func splitIssueKey(key string) (int64, int64) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	journal, _ := strconv.ParseInt(parts[0], 10, 64)
	issue, _ := strconv.ParseInt(parts[1], 10, 64)
	return journal, issue
}

// Compare computes the raw diff between two snapshots. A group is
// changed when its article-id set differs; keys absent from one side
// count as empty sets.
func Compare(before, after *Snapshot) *Diff {
	if before == nil {
		before = NewSnapshot()
	}
	if after == nil {
		after = NewSnapshot()
	}

	issueKeys := make(map[string]bool, len(before.Issues)+len(after.Issues))
	for key := range before.Issues {
		issueKeys[key] = true
	}
	for key := range after.Issues {
		issueKeys[key] = true
	}
	changedIssueKeys := make([]string, 0)
	for key := range issueKeys {
		if !setsEqual(before.Issues[key], after.Issues[key]) {
			changedIssueKeys = append(changedIssueKeys, key)
		}
	}
	sort.Slice(changedIssueKeys, func(i, j int) bool {
		return issueKeyLess(changedIssueKeys[i], changedIssueKeys[j])
	})

	inPressIDs := make(map[int64]bool, len(before.InPress)+len(after.InPress))
	for id := range before.InPress {
		inPressIDs[id] = true
	}
	for id := range after.InPress {
		inPressIDs[id] = true
	}
	changedInPress := make([]int64, 0)
	for id := range inPressIDs {
		if !setsEqual(before.InPress[id], after.InPress[id]) {
			changedInPress = append(changedInPress, id)
		}
	}
	sort.Slice(changedInPress, func(i, j int) bool {
		return changedInPress[i] < changedInPress[j]
	})

	diff := &Diff{
		ChangedIssueKeys:  changedIssueKeys,
		ChangedInPressIDs: changedInPress,
		IssueDetails:      make([]IssueDetail, 0, len(changedIssueKeys)),
		InPressDetails:    make([]InPressDetail, 0, len(changedInPress)),
	}

	addedAll := make(map[int64]bool)
	removedAll := make(map[int64]bool)
	for _, key := range changedIssueKeys {
		beforeSet := before.Issues[key]
		afterSet := after.Issues[key]
		added, removed := setDiff(beforeSet, afterSet)
		for _, id := range added {
			addedAll[id] = true
		}
		for _, id := range removed {
			removedAll[id] = true
		}
		diff.IssueDetails = append(diff.IssueDetails, IssueDetail{
			IssueKey:    key,
			BeforeCount: len(beforeSet),
			AfterCount:  len(afterSet),
			Added:       added,
			Removed:     removed,
		})
	}
	for _, id := range changedInPress {
		beforeSet := before.InPress[id]
		afterSet := after.InPress[id]
		added, removed := setDiff(beforeSet, afterSet)
		for _, articleID := range added {
			addedAll[articleID] = true
		}
		for _, articleID := range removed {
			removedAll[articleID] = true
		}
		diff.InPressDetails = append(diff.InPressDetails, InPressDetail{
			JournalID:   id,
			BeforeCount: len(beforeSet),
			AfterCount:  len(afterSet),
			Added:       added,
			Removed:     removed,
		})
	}

	diff.Added = sortedIDs(addedAll)
	diff.Removed = sortedIDs(removedAll)
	return diff
}
