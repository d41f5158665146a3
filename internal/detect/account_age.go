package detect

import "time"

const day = 24 * time.Hour

// CheckAccountAge fires when the account is strictly younger than minDays.
// An account exactly minDays old passes. Zero minDays or an unknown creation
// time disables the check.
func CheckAccountAge(createdAt, now time.Time, minDays int) (AccountAge, bool) {
	if minDays <= 0 || createdAt.IsZero() {
		return AccountAge{}, false
	}
	age := now.Sub(createdAt)
	if age < time.Duration(minDays)*day {
		return AccountAge{Age: age, MinDays: minDays}, true
	}
	return AccountAge{}, false
}
