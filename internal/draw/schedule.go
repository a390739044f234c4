package draw

import "time"

// DrawZone is the zone draws are scheduled in.
var DrawZone = time.FixedZone("CST", 8*60*60)

const (
	drawHour   = 21
	drawMinute = 15
)

var drawDays = map[time.Weekday]bool{
	time.Sunday:   true,
	time.Tuesday:  true,
	time.Thursday: true,
}

// NextDrawTime returns the first scheduled draw strictly after t. Draws are
// held on Tuesday, Thursday and Sunday evenings.
func NextDrawTime(t time.Time) time.Time {
	local := t.In(DrawZone)
	day := time.Date(local.Year(), local.Month(), local.Day(), drawHour, drawMinute, 0, 0, DrawZone)
	for i := 0; i < 8; i++ {
		candidate := day.AddDate(0, 0, i)
		if drawDays[candidate.Weekday()] && candidate.After(t) {
			return candidate.UTC()
		}
	}
	return day.AddDate(0, 0, 7).UTC()
}
