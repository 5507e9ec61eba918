package dz

import "testing"

func TestBuildDateWeekday(t *testing.T) {
	tests := []struct {
		name              string
		year, month, day  int
		wantFirmwareValue int
	}{
		// 2023-01-01 was a Sunday: Sakamoto 0, firmware convention 6.
		{"2023-01-01 sunday", 2023, 1, 1, 6},
		// 2023-01-02 was a Monday: Sakamoto 1, firmware convention 0.
		{"2023-01-02 monday", 2023, 1, 2, 0},
		// 2000-02-29 (leap day) was a Tuesday: Sakamoto 2, firmware 1.
		{"2000-02-29 tuesday", 2000, 2, 29, 1},
		// 2023-01-07 was a Saturday: Sakamoto 6, firmware 5.
		{"2023-01-07 saturday", 2023, 1, 7, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildDateWeekday(tt.year, tt.month, tt.day); got != tt.wantFirmwareValue {
				t.Errorf("buildDateWeekday(%d,%d,%d) = %d, want %d", tt.year, tt.month, tt.day, got, tt.wantFirmwareValue)
			}
		})
	}
}

func TestFirmwareWeekdayMapping(t *testing.T) {
	// Sakamoto's 0 (Sunday) maps to firmware's 6 (last day of its week);
	// every other value shifts down by one.
	for sakamoto := 0; sakamoto < 7; sakamoto++ {
		got := firmwareWeekday(sakamoto)
		var want int
		if sakamoto == 0 {
			want = 6
		} else {
			want = sakamoto - 1
		}
		if got != want {
			t.Errorf("firmwareWeekday(%d) = %d, want %d", sakamoto, got, want)
		}
	}
}
