package utils

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jamie Field", "jamie-field"},
		{"  double  spaces  ", "double-spaces"},
		{"O'Brien, Pat", "o-brien-pat"},
		{"Room #42 (north)", "room-42-north"},
		{"ALLCAPS", "allcaps"},
		{"---", "unnamed"},
		{"", "unnamed"},
		{"über", "ber"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
