package period_test

import (
	"testing"
	"time"

	"github.com/shivammacoss/profitVision-new-sub000/internal/period"
)

func TestValidate(t *testing.T) {
	valid := []string{"2025-01", "2025-12", "1999-06"}
	for _, key := range valid {
		if err := period.Validate(key); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", key, err)
		}
	}

	invalid := []string{"", "2025", "2025-13", "2025-00", "2025-1", "25-01", "2025/01", "2025-01-15"}
	for _, key := range invalid {
		if err := period.Validate(key); err == nil {
			t.Errorf("Validate(%q) = nil, want error", key)
		}
	}
}

func TestFromTime(t *testing.T) {
	ts := time.Date(2025, time.March, 31, 23, 59, 0, 0, time.UTC)
	if got := period.FromTime(ts); got != "2025-03" {
		t.Errorf("FromTime = %q, want 2025-03", got)
	}
}

func TestPrevious(t *testing.T) {
	cases := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC), "2025-02"},
		{time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), "2024-12"},
		{time.Date(2025, time.December, 31, 23, 59, 59, 0, time.UTC), "2025-11"},
	}
	for _, c := range cases {
		if got := period.Previous(c.now); got != c.want {
			t.Errorf("Previous(%s) = %q, want %q", c.now, got, c.want)
		}
	}
}
