package alerting

import (
	"sort"

	"github.com/steveyegge/devpulse/internal/priorities"
	"github.com/steveyegge/devpulse/internal/types"
)

// AlertScore applies the shared priority formula to an alert. Severity maps
// onto the risk band of the same name; an alert is a low-complexity item
// (acknowledging it is cheap).
func AlertScore(a *types.Alert) float64 {
	return priorities.Score(types.RiskLevel(a.Severity), a.BusinessImpact, a.Confidence, types.ComplexityLow)
}

// liveInsight reports whether an insight still belongs in the backlog.
func liveInsight(in *types.Insight) bool {
	if in.SupersededBy != "" {
		return false
	}
	return in.Status == types.ValidationPending || in.Status == types.ValidationValidated
}

// RankBacklog merges open alerts and live insights into one list ordered by
// score (highest first), then kind and id. limit <= 0 returns everything.
func RankBacklog(alerts []*types.Alert, insights []*types.Insight, limit int) []types.BacklogItem {
	items := make([]types.BacklogItem, 0, len(alerts)+len(insights))
	for _, a := range alerts {
		if !a.Status.IsOpen() {
			continue
		}
		score := AlertScore(a)
		level := priorities.Escalate(priorities.Level(score), a.EscalationLevel)
		items = append(items, types.BacklogItem{
			Kind:     types.BacklogAlert,
			ID:       a.ID,
			Title:    a.Title,
			Score:    score,
			Priority: level,
		})
	}
	for _, in := range insights {
		if !liveInsight(in) {
			continue
		}
		items = append(items, types.BacklogItem{
			Kind:     types.BacklogInsight,
			ID:       in.ID,
			Title:    in.Title,
			Score:    in.PriorityScore,
			Priority: in.Priority,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].Kind != items[j].Kind {
			return items[i].Kind < items[j].Kind
		}
		return items[i].ID < items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
