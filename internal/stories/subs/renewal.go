package subs

import (
	"fmt"
	"time"
)

// ResolveRenewal fills in the renewal date from the start date and billing
// frequency when it is not given, and reports the status the subscription
// should be created with: a renewal date already behind now means expired.
func ResolveRenewal(startDate time.Time, frequency Frequency, renewal *time.Time, now time.Time) (time.Time, Status, error) {
	if startDate.After(now) {
		return time.Time{}, "", fmt.Errorf("%w: start date must be in the past", ErrInvalid)
	}

	var renewalDate time.Time
	if renewal != nil {
		renewalDate = *renewal
		if !renewalDate.After(startDate) {
			return time.Time{}, "", fmt.Errorf("%w: renewal date must be after the start date", ErrInvalid)
		}
	} else {
		days, err := frequency.Period()
		if err != nil {
			return time.Time{}, "", err
		}
		renewalDate = startDate.AddDate(0, 0, days)
	}

	if renewalDate.Before(now) {
		return renewalDate, StatusExpired, nil
	}

	return renewalDate, StatusActive, nil
}
