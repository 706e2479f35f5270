package forecast

import (
	"fmt"
	"sort"
	"time"
	_ "time/tzdata"
)

const dateLayout = "2006-01-02"

// Session is a trading day's continuous window, as offsets from local midnight.
type Session struct {
	Open     time.Duration
	Close    time.Duration
	Location *time.Location
	holidays map[string]struct{}
}

// DefaultSession is 09:00-14:45 Asia/Ho_Chi_Minh.
func DefaultSession() Session {
	s, err := ParseSession("09:00", "14:45", "Asia/Ho_Chi_Minh", nil)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSession builds a Session from "HH:MM" bounds, an IANA zone name and
// holiday dates in YYYY-MM-DD form.
func ParseSession(open, closing, tz string, holidays []string) (Session, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Session{}, fmt.Errorf("session timezone %q: %w", tz, err)
	}
	o, err := parseTimeOfDay(open)
	if err != nil {
		return Session{}, fmt.Errorf("session open: %w", err)
	}
	c, err := parseTimeOfDay(closing)
	if err != nil {
		return Session{}, fmt.Errorf("session close: %w", err)
	}
	if c <= o {
		return Session{}, fmt.Errorf("session close %s must be after open %s", closing, open)
	}
	s := Session{Open: o, Close: c, Location: loc}
	for _, h := range holidays {
		d, err := time.ParseInLocation(dateLayout, h, loc)
		if err != nil {
			return Session{}, fmt.Errorf("holiday %q: %w", h, err)
		}
		s = s.WithHoliday(d)
	}
	return s, nil
}

func parseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// WithHoliday returns a copy of s that also skips the calendar date of d.
func (s Session) WithHoliday(d time.Time) Session {
	out := make(map[string]struct{}, len(s.holidays)+1)
	for k := range s.holidays {
		out[k] = struct{}{}
	}
	out[d.In(s.loc()).Format(dateLayout)] = struct{}{}
	s.holidays = out
	return s
}

// Holidays lists the injected non-trading dates, sorted.
func (s Session) Holidays() []string {
	out := make([]string, 0, len(s.holidays))
	for k := range s.holidays {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s Session) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// IsTradingDay reports whether the calendar date of t is a weekday and not a holiday.
func (s Session) IsTradingDay(t time.Time) bool {
	t = t.In(s.loc())
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, off := s.holidays[t.Format(dateLayout)]
	return !off
}

func (s Session) midnight(t time.Time) time.Time {
	t = t.In(s.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc())
}

func (s Session) openOn(day time.Time) time.Time  { return s.midnight(day).Add(s.Open) }
func (s Session) closeOn(day time.Time) time.Time { return s.midnight(day).Add(s.Close) }

// nextTradingDay returns the midnight of the first trading day strictly after day.
func (s Session) nextTradingDay(day time.Time) time.Time {
	d := s.midnight(day)
	for {
		d = d.AddDate(0, 0, 1)
		if s.IsTradingDay(d) {
			return d
		}
	}
}

// addTradingDays moves n trading days forward from the trading day day.
// Without holidays whole weeks are skipped arithmetically.
func (s Session) addTradingDays(day time.Time, n int) time.Time {
	d := s.midnight(day)
	if len(s.holidays) == 0 && n >= 5 {
		d = d.AddDate(0, 0, 7*(n/5))
		n %= 5
	}
	for ; n > 0; n-- {
		d = s.nextTradingDay(d)
	}
	return d
}

// Align moves t onto the session: a time before open goes to that day's open,
// a time after close or on a non-trading day goes to the next trading open.
func (s Session) Align(t time.Time) time.Time {
	t = t.In(s.loc())
	if !s.IsTradingDay(t) {
		return s.openOn(s.nextTradingDay(t))
	}
	if open := s.openOn(t); t.Before(open) {
		return open
	}
	if t.After(s.closeOn(t)) {
		return s.openOn(s.nextTradingDay(t))
	}
	return t
}

// Clock labels rollout steps with session-aware timestamps. Step i is the
// (i+1)-th in-session slot after the anchor.
type Clock struct {
	session Session
	step    time.Duration
	first   time.Time
	// slots left on the first label's day, counting the first label itself
	firstDay int
	perDay   int
}

// NewClock anchors a clock at the last observed bar time.
func NewClock(anchor time.Time, step time.Duration, session Session) (*Clock, error) {
	if step <= 0 {
		return nil, fmt.Errorf("clock step must be > 0, got %s", step)
	}
	if session.Close <= session.Open {
		return nil, fmt.Errorf("session close must be after open")
	}
	first := session.Align(anchor.Add(step))
	return &Clock{
		session:  session,
		step:     step,
		first:    first,
		firstDay: int(session.closeOn(first).Sub(first)/step) + 1,
		perDay:   int((session.Close-session.Open)/step) + 1,
	}, nil
}

// Step returns the bar interval.
func (c *Clock) Step() time.Duration { return c.step }

// LabelFor returns the timestamp of step i.
func (c *Clock) LabelFor(i int) time.Time {
	if i < c.firstDay {
		return c.first.Add(time.Duration(i) * c.step)
	}
	j := i - c.firstDay
	day := c.session.addTradingDays(c.first, j/c.perDay+1)
	return c.session.openOn(day).Add(time.Duration(j%c.perDay) * c.step)
}

// Labels returns the first n step labels.
func (c *Clock) Labels(n int) []time.Time {
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.LabelFor(i))
	}
	return out
}
