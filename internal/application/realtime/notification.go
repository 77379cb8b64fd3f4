package realtime

import "strings"

// DefaultNotificationKinds are the notification kinds that concern the till
var DefaultNotificationKinds = []string{"payment", "order", "debt"}

var relevantWords = []string{"pagamento", "ordine", "conto", "debito"}

// NotificationFilter keeps notifications of an allowed kind, or whose text
// mentions payments, orders, tabs or debts
type NotificationFilter struct {
	kinds map[string]bool
}

// NewNotificationFilter creates a filter for the given kinds
func NewNotificationFilter(kinds []string) NotificationFilter {
	f := NotificationFilter{kinds: make(map[string]bool, len(kinds))}
	for _, k := range kinds {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			f.kinds[k] = true
		}
	}
	return f
}

// Relevant reports whether a notification should reach the till
func (f NotificationFilter) Relevant(n NotificationNew) bool {
	if f.kinds[strings.ToLower(strings.TrimSpace(n.Kind))] {
		return true
	}
	text := strings.ToLower(n.Title + " " + n.Message)
	for _, w := range relevantWords {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
