package config

import "testing"

// humanize.ParseBytes treats K/M/G/T as decimal and KiB/MiB/GiB/TiB as binary.
func TestParseSize(t *testing.T) {
	valid := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"0k", 0},
		{"1234", 1234},
		{"1k", 1000},
		{"1KB", 1000},
		{"10m", 10_000_000},
		{"2g", 2_000_000_000},
		{"1T", 1_000_000_000_000},
		{"1.5M", 1_500_000},
		{"1KiB", 1024},
		{"32KiB", 32 * 1024},
		{"1MiB", 1 << 20},
		{"10GiB", 10 << 30},
		{"1TiB", 1 << 40},
	}
	for _, tt := range valid {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSize(tt.input)
			if err != nil {
				t.Fatalf("parseSize(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}

	for _, input := range []string{"", "abc", "1.5.5", "--100", "-1", "-1k", "99999999999999999999", "8EiB", "16EiB"} {
		t.Run("invalid "+input, func(t *testing.T) {
			if _, err := parseSize(input); err == nil {
				t.Errorf("parseSize(%q) should return error", input)
			}
		})
	}
}
