package timezone

import (
	"time"

	_ "time/tzdata"
)

// Location is the timezone of the Workday tenant, reports are dated in it.
var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
}

func Now() time.Time {
	return time.Now().In(Location)
}

// Format renders t for people reading a notification or a log.
func Format(t time.Time) string {
	return t.In(Location).Format("Mon, 02 Jan 2006 15:04:05 MST")
}
