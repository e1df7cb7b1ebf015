package billing

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Project computes the next expected payment for one subscription from its
// session history. It returns nil when the subscription is not projectable
// (not active, or no weekly schedule); malformed input degrades to a skip,
// never an error.
//
// `sessions` may be the school's full session list; entries belonging to other
// subscriptions, cancelled entries and entries without a valid date are
// ignored. `today` and all session dates must already be normalized to the
// caller's reference zone: no zone conversion happens here.
//
// Only Schedule[0] is honored even when a subscription has several weekly
// slots. Sessions scheduled in the future do count towards "last session"
// (the maximum date wins, past or not). Both behaviors are pinned by tests;
// changing either must be a deliberate, visible change.
func Project(sub Subscription, sessions []Session, today time.Time) *ExpectedPayment {
	if !sub.IsActive() || len(sub.Schedule) == 0 {
		return nil
	}

	code := sub.CurrencyCode
	if code == "" {
		code = DefaultCurrencyCode
	}
	ep := &ExpectedPayment{
		SubscriptionID:    sub.ID,
		StudentID:         sub.StudentID,
		NextPaymentAmount: sub.TotalPrice,
		CurrencyCode:      code,
	}

	last, ok := lastSession(sub.ID, sessions)
	if !ok {
		// never billed through a session: due today
		ep.NextPaymentDate = DateOf(today)
		return ep
	}

	lastDate := DateOf(last.ScheduledDate.Time)
	ep.LastSessionDate = null.TimeFrom(lastDate)
	ep.NextPaymentDate = nextWeekday(lastDate, sub.Schedule[0].Day.Weekday())
	return ep
}

// lastSession returns the subscription's session with the maximum valid
// ScheduledDate, skipping cancelled sessions. Date ties break on the lowest
// session ID so the result is deterministic.
func lastSession(subscriptionID string, sessions []Session) (Session, bool) {
	var last Session
	var found bool
	for _, s := range sessions {
		if s.SubscriptionID != subscriptionID || s.Status == SessionCancelled || !s.ScheduledDate.Valid {
			continue
		}
		if !found {
			last, found = s, true
			continue
		}
		if s.ScheduledDate.Time.After(last.ScheduledDate.Time) ||
			(s.ScheduledDate.Time.Equal(last.ScheduledDate.Time) && s.ID < last.ID) {
			last = s
		}
	}
	return last, found
}

// nextWeekday returns the earliest date strictly after `after` falling on `day`.
func nextWeekday(after time.Time, day time.Weekday) time.Time {
	next := after.AddDate(0, 0, 1)
	for next.Weekday() != day {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// DateOf truncates t to its calendar date, keeping the location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
