package smsbackup

import (
	"strings"
	"time"

	"github.com/Veraticus/spice-sms/internal/model"
)

// Filter narrows a dump before parsing. Zero values match everything.
type Filter struct {
	Since  time.Time
	Sender string
}

// Apply returns the messages matching f with exact duplicates removed.
// Backup tools often export the same message twice.
func (f Filter) Apply(msgs []model.SMS) []model.SMS {
	seen := make(map[model.SMS]bool, len(msgs))
	out := make([]model.SMS, 0, len(msgs))

	for _, msg := range msgs {
		if f.Sender != "" && !strings.EqualFold(msg.Sender, f.Sender) {
			continue
		}
		if !f.Since.IsZero() && msg.ReceivedAt().Before(f.Since) {
			continue
		}
		if seen[msg] {
			continue
		}
		seen[msg] = true
		out = append(out, msg)
	}
	return out
}
