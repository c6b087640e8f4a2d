package tz

import (
	"errors"
	"testing"
	"time"
)

func naive(y int, m time.Month, d, h, mi int) time.Time {
	return time.Date(y, m, d, h, mi, 0, 0, time.UTC)
}

func TestToUTC_LegacyOffsets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		designator string
		local      time.Time
		want       time.Time
	}{
		{"negative hours", "UTC-5", naive(2026, 1, 15, 8, 0), naive(2026, 1, 15, 13, 0)},
		{"positive hours", "UTC+1", naive(2026, 1, 15, 8, 0), naive(2026, 1, 15, 7, 0)},
		{"bare UTC", "UTC", naive(2026, 1, 15, 8, 0), naive(2026, 1, 15, 8, 0)},
		{"UTC+0", "UTC+0", naive(2026, 1, 15, 8, 0), naive(2026, 1, 15, 8, 0)},
		{"UTC-0", "UTC-0", naive(2026, 1, 15, 8, 0), naive(2026, 1, 15, 8, 0)},
		{"with minutes", "UTC+5:30", naive(2026, 1, 15, 8, 0), naive(2026, 1, 15, 2, 30)},
		{"two digit hour crosses midnight", "UTC+10", naive(2026, 1, 15, 8, 0), naive(2026, 1, 14, 22, 0)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ToUTC(tc.local, tc.designator)
			if err != nil {
				t.Fatalf("ToUTC(%q) error: %v", tc.designator, err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("ToUTC(%q) = %v, want %v", tc.designator, got, tc.want)
			}
		})
	}
}

func TestToUTC_NamedZoneHonorsDST(t *testing.T) {
	t.Parallel()

	summer, err := ToUTC(naive(2026, 3, 10, 9, 0), "America/New_York")
	if err != nil {
		t.Fatalf("ToUTC error: %v", err)
	}
	if want := naive(2026, 3, 10, 13, 0); !summer.Equal(want) {
		t.Fatalf("expected %v after DST start, got %v", want, summer)
	}

	winter, err := ToUTC(naive(2026, 1, 10, 9, 0), "America/New_York")
	if err != nil {
		t.Fatalf("ToUTC error: %v", err)
	}
	if want := naive(2026, 1, 10, 14, 0); !winter.Equal(want) {
		t.Fatalf("expected %v in winter, got %v", want, winter)
	}
}

func TestToUTC_IgnoresInputLocation(t *testing.T) {
	t.Parallel()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	local := time.Date(2026, 1, 15, 8, 0, 0, 0, tokyo)

	got, err := ToUTC(local, "UTC-5")
	if err != nil {
		t.Fatalf("ToUTC error: %v", err)
	}
	if want := naive(2026, 1, 15, 13, 0); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParse_Kinds(t *testing.T) {
	t.Parallel()

	z, err := Parse("UTC-7")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if z.Kind != FixedOffset || z.OffsetMinutes != -420 {
		t.Fatalf("unexpected zone: %+v", z)
	}

	z, err = Parse("Europe/Budapest")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if z.Kind != NamedZone || z.String() != "Europe/Budapest" {
		t.Fatalf("unexpected zone: %+v", z)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"", "Local", "UTC+", "UTC+123", "UTC+15", "UTC+5:75", "Mars/Olympus_Mons", "utc+1"} {
		_, err := Parse(d)
		if err == nil {
			t.Fatalf("Parse(%q): expected error, got nil", d)
		}
		if !errors.Is(err, ErrInvalidTimezone) {
			t.Fatalf("Parse(%q): expected ErrInvalidTimezone, got %v", d, err)
		}
	}
}
