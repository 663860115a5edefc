package cli

import "testing"

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int
		want string
	}{
		{0, "0ms"},
		{1, "1ms"},
		{100, "100ms"},
		{999, "999ms"},
		{1000, "1.0s"},
		{1500, "1.5s"},
		{5000, "5.0s"},
		{59000, "59.0s"},
		{60000, "1m0.0s"},
		{61000, "1m1.0s"},
		{90000, "1m30.0s"},
		{120000, "2m0.0s"},
		{125500, "2m5.5s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := FormatDuration(tt.ms)
			if got != tt.want {
				t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
			}
		})
	}
}
