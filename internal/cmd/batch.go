package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/steipete/vacationcal/internal/config"
	"github.com/steipete/vacationcal/internal/history"
	"github.com/steipete/vacationcal/internal/outfmt"
	"github.com/steipete/vacationcal/internal/schedule"
	"github.com/steipete/vacationcal/internal/timeparse"
	"github.com/steipete/vacationcal/internal/ui"
	"github.com/steipete/vacationcal/internal/vacation"
)

// ScheduleFlags describe one vacation block. Empty values fall back to the
// batch being updated, then to config.json.
type ScheduleFlags struct {
	Name     string  `name:"name" short:"N" help:"Event name (e.g. 'Vacation')"`
	From     string  `name:"from" help:"First day (YYYY-MM-DD, today, tomorrow, monday, ...)"`
	To       string  `name:"to" help:"Last day, inclusive (same forms as --from)"`
	Start    string  `name:"start" help:"Start time of each day (HH:MM; default from config)"`
	Hours    float64 `name:"hours" help:"Length of each day in hours (default from config)"`
	Weekdays string  `name:"weekdays" help:"Weekdays to book: mon-fri, weekdays, or a list like mon,wed,fri (default from config)"`
	Calendar string  `name:"calendar" aliases:"cal" help:"Calendar name or id (default from config, else primary)"`
	Email    string  `name:"email" help:"Notification recipient (default: email_address from config)"`
	NoEmail  bool    `name:"no-email" help:"Do not send a notification email"`
	Timezone string  `name:"timezone" aliases:"tz" help:"Timezone for the event times (default: local)"`
}

// request merges the flags over base and the config defaults.
func (f ScheduleFlags) request(cfg config.File, base schedule.Request, now time.Time) (schedule.Request, error) {
	req := base

	loc := time.Local
	if tz := strings.TrimSpace(f.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return req, usagef("invalid timezone %q: %v", tz, err)
		}
		loc = l
	}
	req.Location = loc

	if v := strings.TrimSpace(f.Name); v != "" {
		req.EventName = v
	}
	if v := strings.TrimSpace(f.From); v != "" {
		t, err := timeparse.ParseRangeExpr(v, now.In(loc), loc)
		if err != nil {
			return req, usage(err.Error())
		}
		req.StartDate = t
	}
	if v := strings.TrimSpace(f.To); v != "" {
		t, err := timeparse.ParseRangeExpr(v, now.In(loc), loc)
		if err != nil {
			return req, usage(err.Error())
		}
		req.EndDate = t
	}
	if req.EndDate.IsZero() {
		req.EndDate = req.StartDate
	}

	start := strings.TrimSpace(f.Start)
	if start == "" && base.StartTime == (timeparse.Clock{}) {
		start = cfg.StartTime
	}
	if start != "" {
		clock, err := timeparse.ParseClock(start)
		if err != nil {
			return req, usage(err.Error())
		}
		req.StartTime = clock
	}

	switch {
	case f.Hours != 0:
		req.DayLengthHours = f.Hours
	case req.DayLengthHours == 0:
		req.DayLengthHours = cfg.DayLengthHours
	}

	weekdays := strings.TrimSpace(f.Weekdays)
	if weekdays == "" && len(req.Weekdays) == 0 {
		weekdays = strings.Join(cfg.Weekdays, ",")
	}
	if weekdays != "" {
		days, err := timeparse.ParseWeekdays(weekdays)
		if err != nil {
			return req, usage(err.Error())
		}
		req.Weekdays = days
	}

	if v := strings.TrimSpace(f.Calendar); v != "" {
		req.CalendarName = v
	} else if req.CalendarName == "" {
		req.CalendarName = strings.TrimSpace(cfg.Calendar)
		if req.CalendarName == "" {
			req.CalendarName = "primary"
		}
	}

	if v := strings.TrimSpace(f.Email); v != "" {
		req.NotificationEmail = v
	} else if req.NotificationEmail == "" {
		req.NotificationEmail = cfg.EmailAddress
	}
	switch {
	case f.NoEmail:
		req.SendEmail = false
	case strings.TrimSpace(f.Email) != "":
		req.SendEmail = true
	case base.EventName == "":
		req.SendEmail = cfg.SendEmailEnabled()
	}
	return req, nil
}

// requestPreview is the dry-run payload for a schedule.
func requestPreview(req schedule.Request) (map[string]any, error) {
	slots, err := schedule.Build(req)
	if err != nil {
		return nil, err
	}
	days := make([]string, 0, len(slots))
	for _, s := range slots {
		days = append(days, s.Start.Format(time.RFC3339)+"/"+s.End.Format(time.RFC3339))
	}
	out := schedule.Snapshot(req)
	out["events"] = days
	return out, nil
}

func validate(req schedule.Request) error {
	if problems := schedule.Validate(req); len(problems) > 0 {
		return &vacation.ValidationError{Problems: problems}
	}
	return nil
}

type CreateCmd struct {
	ScheduleFlags `embed:""`
}

func (c *CreateCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}
	if strings.TrimSpace(c.From) == "" {
		return usage("--from is required")
	}
	req, err := c.request(sess.cfg, schedule.Request{}, nowFn())
	if err != nil {
		return err
	}
	if err := validate(req); err != nil {
		return err
	}
	preview, err := requestPreview(req)
	if err != nil {
		return err
	}
	if err := dryRunExit(ctx, flags, "create vacation batch", preview); err != nil {
		return err
	}

	svc, err := sess.service(ctx, flags)
	if err != nil {
		return err
	}
	info, err := resolveCalendar(ctx, sess, flags, req.CalendarName)
	if err != nil {
		return err
	}
	req.CalendarName = calendarDisplayName(info)

	res, err := svc.Create(ctx, info.ID, req)
	if err != nil && res.Created == 0 {
		return err
	}
	if outErr := writeResult(ctx, "created", res); outErr != nil {
		return outErr
	}
	return err
}

type UpdateCmd struct {
	BatchID       string `arg:"" name:"batchId" help:"Batch (operation) id to replace"`
	ScheduleFlags `embed:""`
}

func (c *UpdateCmd) Run(ctx context.Context, flags *RootFlags) error {
	sess, err := openHistory(ctx, flags)
	if err != nil {
		return err
	}
	op, ok := sess.store.BatchByID(strings.TrimSpace(c.BatchID))
	if !ok {
		return fmt.Errorf("%w: %s", vacation.ErrBatchNotFound, c.BatchID)
	}
	req, err := c.request(sess.cfg, baseRequest(op), nowFn())
	if err != nil {
		return err
	}
	if err := validate(req); err != nil {
		return err
	}
	preview, err := requestPreview(req)
	if err != nil {
		return err
	}
	preview["replaces"] = op.ID
	if err := confirmDestructive(ctx, flags, fmt.Sprintf("replace batch %s (%d events)", op.ID, len(op.AffectedEventIDs))); err != nil {
		return err
	}
	if err := dryRunExit(ctx, flags, "update vacation batch", preview); err != nil {
		return err
	}

	svc, err := sess.service(ctx, flags)
	if err != nil {
		return err
	}
	info, err := resolveCalendar(ctx, sess, flags, req.CalendarName)
	if err != nil {
		return err
	}
	req.CalendarName = calendarDisplayName(info)

	res, err := svc.Update(ctx, op.ID, info.ID, req)
	if err != nil && res.Operation.ID == "" {
		return err
	}
	if outErr := writeResult(ctx, "updated", res); outErr != nil {
		return outErr
	}
	return err
}

// baseRequest recovers the request an existing batch was created from.
func baseRequest(op history.Operation) schedule.Request {
	for i := len(op.EventSnapshots) - 1; i >= 0; i-- {
		if snap := op.EventSnapshots[i].RequestSnapshot; len(snap) > 0 {
			return schedule.FromSnapshot(snap)
		}
	}
	req := schedule.Request{}
	if len(op.EventSnapshots) > 0 {
		first, last, _ := op.DateSpan()
		req.EventName = op.EventSnapshots[0].EventName
		req.CalendarName = op.EventSnapshots[0].CalendarID
		req.StartDate, req.EndDate = first, last
	}
	return req
}

func resolveCalendar(ctx context.Context, sess *session, flags *RootFlags, name string) (vacation.CalendarInfo, error) {
	cal, _, err := sess.calendar(ctx, flags)
	if err != nil {
		return vacation.CalendarInfo{}, err
	}
	return vacation.ResolveCalendar(ctx, cal, name)
}

func calendarDisplayName(info vacation.CalendarInfo) string {
	if s := strings.TrimSpace(info.Summary); s != "" {
		return s
	}
	return info.ID
}

// writeResult prints the outcome of one executed action.
func writeResult(ctx context.Context, verb string, res vacation.Result) error {
	op := res.Operation
	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"action":    verb,
			"operation": op,
			"created":   res.Created,
			"deleted":   res.Deleted,
			"skipped":   res.Skipped,
			"stopped":   res.Stopped,
		})
	}
	if outfmt.IsPlain(ctx) {
		fmt.Fprintf(os.Stdout, "action\t%s\n", verb)
		fmt.Fprintf(os.Stdout, "operation_id\t%s\n", op.ID)
		fmt.Fprintf(os.Stdout, "created\t%d\n", res.Created)
		fmt.Fprintf(os.Stdout, "deleted\t%d\n", res.Deleted)
		fmt.Fprintf(os.Stdout, "skipped\t%d\n", res.Skipped)
		return nil
	}

	u := ui.FromContext(ctx)
	if u == nil {
		return errors.New("no ui in context")
	}
	switch {
	case res.Stopped:
		u.Out().Warnf("Stopped: %s batch %s with %d events", verb, op.ID, res.Created)
	case res.Created > 0 && res.Deleted > 0:
		u.Out().Successf("%s batch %s: %d events created, %d removed", titleCase(verb), op.ID, res.Created, res.Deleted)
	case res.Created > 0:
		u.Out().Successf("%s batch %s: %d events", titleCase(verb), op.ID, res.Created)
	default:
		u.Out().Successf("%s batch %s: %d events removed", titleCase(verb), op.ID, res.Deleted)
	}
	if res.Skipped > 0 {
		u.Out().Printf("%d events were already gone", res.Skipped)
	}
	if op.Description != "" {
		u.Out().Println(u.Out().Dim(op.Description))
	}
	return nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
