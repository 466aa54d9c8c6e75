package recurrence

import (
	"testing"
	"time"
)

func TestNextRunOnce(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.Local)

	got, err := NextRun(Once, Spec{Date: "2026-04-01", Time: "09:30"}, now)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}
	want := time.Date(2026, time.April, 1, 9, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", got, want)
	}

	// Past instants are returned verbatim; firing immediately is the
	// registry's job, not the calculator's.
	got, err = NextRun(Once, Spec{Date: "2020-01-01", Time: "00:05"}, now)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}
	if !got.Before(now) {
		t.Fatalf("expected past instant, got %v", got)
	}
}

func TestNextRunDailyAlwaysNextDay(t *testing.T) {
	t.Parallel()
	// 06:00 now with a 23:00 rule: today's 23:00 has not passed, but daily
	// still skips to tomorrow.
	now := time.Date(2026, time.March, 10, 6, 0, 0, 0, time.Local)
	got, err := NextRun(Daily, Spec{Time: "23:00"}, now)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}
	want := time.Date(2026, time.March, 11, 23, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", got, want)
	}
	if d := got.Sub(now); d <= 0 || d > 48*time.Hour {
		t.Fatalf("daily next run out of bounds: %v", d)
	}
}

func TestNextRunDailyMonthRollover(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.January, 31, 12, 0, 0, 0, time.Local)
	got, err := NextRun(Daily, Spec{Time: "08:00"}, now)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}
	want := time.Date(2026, time.February, 1, 8, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", got, want)
	}
}

func TestNextRunWeekly(t *testing.T) {
	t.Parallel()
	// Thursday 2026-03-12.
	thursday := time.Date(2026, time.March, 12, 10, 0, 0, 0, time.Local)
	if thursday.Weekday() != time.Thursday {
		t.Fatalf("fixture is %v, want Thursday", thursday.Weekday())
	}

	tests := []struct {
		name string
		days []string
		want time.Time
	}{
		{
			name: "mon+wed from thursday lands on monday",
			days: []string{"mon", "wed"},
			want: time.Date(2026, time.March, 16, 9, 0, 0, 0, time.Local),
		},
		{
			name: "friday is tomorrow",
			days: []string{"fri"},
			want: time.Date(2026, time.March, 13, 9, 0, 0, 0, time.Local),
		},
		{
			name: "today only means next week",
			days: []string{"thu"},
			want: time.Date(2026, time.March, 19, 9, 0, 0, 0, time.Local),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(Weekly, Spec{Days: tt.days, Time: "09:00"}, thursday)
			if err != nil {
				t.Fatalf("NextRun error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextRun = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRunWeeklyMinimalPositiveOffset(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, time.March, 12, 10, 0, 0, 0, time.Local) // Thursday
	got, err := NextRun(Weekly, Spec{Days: []string{"sun", "mon", "sat"}, Time: "09:00"}, now)
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}
	if got.Weekday() != time.Saturday {
		t.Fatalf("weekday = %v, want Saturday (minimal offset)", got.Weekday())
	}
	offset := int(got.Sub(now).Hours() / 24)
	if offset < 1 || offset > 7 {
		t.Fatalf("offset %d days out of 1..7", offset)
	}
}

func TestNextRunMonthlyClamp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		now  time.Time
		dom  string
		want time.Time
	}{
		{
			name: "january 31st clamps to february",
			now:  time.Date(2026, time.January, 15, 12, 0, 0, 0, time.Local),
			dom:  "31",
			want: time.Date(2026, time.February, 28, 10, 0, 0, 0, time.Local),
		},
		{
			name: "leap year february keeps 29",
			now:  time.Date(2028, time.January, 15, 12, 0, 0, 0, time.Local),
			dom:  "31",
			want: time.Date(2028, time.February, 29, 10, 0, 0, 0, time.Local),
		},
		{
			name: "december rolls into january",
			now:  time.Date(2026, time.December, 5, 12, 0, 0, 0, time.Local),
			dom:  "15",
			want: time.Date(2027, time.January, 15, 10, 0, 0, 0, time.Local),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(Monthly, Spec{DayOfMonth: tt.dom, Time: "10:00"}, tt.now)
			if err != nil {
				t.Fatalf("NextRun error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextRun = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextRunInvalidRules(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tests := []struct {
		name string
		kind Kind
		spec Spec
	}{
		{name: "once missing date", kind: Once, spec: Spec{Time: "10:00"}},
		{name: "once missing time", kind: Once, spec: Spec{Date: "2026-01-01"}},
		{name: "daily missing time", kind: Daily, spec: Spec{}},
		{name: "weekly empty days", kind: Weekly, spec: Spec{Time: "10:00"}},
		{name: "weekly bad token", kind: Weekly, spec: Spec{Days: []string{"funday"}, Time: "10:00"}},
		{name: "monthly missing dom", kind: Monthly, spec: Spec{Time: "10:00"}},
		{name: "monthly dom out of range", kind: Monthly, spec: Spec{DayOfMonth: "32", Time: "10:00"}},
		{name: "bad hour", kind: Daily, spec: Spec{Time: "25:00"}},
		{name: "unknown kind", kind: Kind("hourly"), spec: Spec{Time: "10:00"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NextRun(tt.kind, tt.spec, now); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"once", "daily", "weekly", "monthly"} {
		if _, err := ParseKind(s); err != nil {
			t.Fatalf("ParseKind(%q) error: %v", s, err)
		}
	}
	if _, err := ParseKind("yearly"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
