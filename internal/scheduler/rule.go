package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// parser accepts both 5-field and 6-field (with seconds) specs plus descriptors.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Rule builds the recurrence rule for an interval in minutes. Intervals that
// divide an hour are aligned to the clock; anything else runs every N minutes
// from the moment the scheduler starts.
func Rule(minutes int) string {
	if minutes < 1 {
		minutes = 1
	}
	switch {
	case minutes == 60:
		return "0 * * * *"
	case 60%minutes == 0:
		return fmt.Sprintf("*/%d * * * *", minutes)
	default:
		return fmt.Sprintf("@every %dm", minutes)
	}
}

// ParseRule validates a rule with the scheduler's parser.
func ParseRule(rule string) (cron.Schedule, error) {
	return parser.Parse(rule)
}
