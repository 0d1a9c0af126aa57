package engine

import (
	"sort"
	"time"

	"revcycle-hq/callisto/pkg/rules"
)

// SelectRules filters candidates down to the rules that should run for an
// event and orders them deterministically: priority ascending, ties broken
// by name. A rule is eligible when it is active, inside its effective
// window at the event timestamp, and its trigger matches the event.
func SelectRules(candidates []*rules.Rule, event *rules.TriggerEvent) []*rules.Rule {
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	var selected []*rules.Rule
	for _, r := range candidates {
		if r == nil || !r.IsActive {
			continue
		}
		if !r.InEffect(at) {
			continue
		}
		if !triggerMatches(&r.Trigger, event) {
			continue
		}
		selected = append(selected, r)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Priority != selected[j].Priority {
			return selected[i].Priority < selected[j].Priority
		}
		return selected[i].Name < selected[j].Name
	})
	return selected
}

// triggerMatches reports whether a rule trigger fires for an event. Beyond
// the type match, field-change triggers require an overlap between the
// watched fields and the event's changed fields, and status-change
// triggers constrain the from/to statuses. Empty sets match anything.
func triggerMatches(t *rules.Trigger, event *rules.TriggerEvent) bool {
	if t.Type != event.TriggerType {
		return false
	}

	switch t.Type {
	case rules.TriggerOnFieldChange:
		return watchedFieldChanged(t.WatchFields, event.ChangedFields)
	case rules.TriggerOnStatusChange:
		if !statusAllowed(t.FromStatuses, event.FromStatus) {
			return false
		}
		return statusAllowed(t.ToStatuses, event.ToStatus)
	}
	return true
}

func watchedFieldChanged(watched, changed []string) bool {
	if len(watched) == 0 {
		return true
	}
	for _, w := range watched {
		for _, c := range changed {
			if w == c {
				return true
			}
		}
	}
	return false
}

func statusAllowed(allowed []string, status string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
