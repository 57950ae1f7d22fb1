package parking

import "time"

const (
	// HourlyRate is charged per hour, prorated in quarter-hour steps.
	HourlyRate = 10.0

	QuarterMinutes = 15
	QuarterFee     = HourlyRate / 4
)

// TotalMinutes rounds d up to whole minutes. Non-positive durations count
// as one minute.
func TotalMinutes(d time.Duration) int {
	ms := d.Milliseconds()
	if ms <= 0 {
		return 1
	}
	return int((ms + 59999) / 60000)
}

// Quarters rounds d up to started quarter hours, never less than one.
func Quarters(d time.Duration) int {
	minutes := TotalMinutes(d)
	return (minutes + QuarterMinutes - 1) / QuarterMinutes
}

// CalculateFee returns the charge for a stay of length d.
func CalculateFee(d time.Duration) float64 {
	return float64(Quarters(d)) * QuarterFee
}
