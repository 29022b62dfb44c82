// Package scheduler triggers dispatch cycles on a recurrence rule derived
// from the configured interval.
//
// The scheduler owns a single cron job. It only triggers: the cycle itself
// runs on the base (application) context, so Stop never cancels a cycle that
// is already in flight.
package scheduler
