package history

import (
	"fmt"
	"io"

	ical "github.com/arran4/golang-ical"
)

const icsProductID = "-//vacationcal//vacal history//EN"

// WriteICS renders the event snapshots of ops as a VCALENDAR. Each event uses
// its provider id as UID; the owning operation id is kept in CATEGORIES.
func WriteICS(w io.Writer, ops []Operation) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(icsProductID)

	for _, op := range ops {
		for i, ev := range op.EventSnapshots {
			uid := ev.EventID
			if uid == "" {
				uid = fmt.Sprintf("%s-%d", op.ID, i)
			}
			vev := cal.AddEvent(uid)
			vev.SetSummary(ev.EventName)
			vev.SetStartAt(ev.StartTime.Resolve(nil))
			vev.SetEndAt(ev.EndTime.Resolve(nil))
			if !ev.CreatedAt.IsZero() {
				vev.SetCreatedTime(ev.CreatedAt.Resolve(nil))
			}
			vev.SetDtStampTime(op.CreatedAt.Resolve(nil))
			vev.SetDescription(op.Description)
			vev.AddProperty(ical.ComponentPropertyCategories, op.ID)
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("write ics: %w", err)
	}
	return nil
}
