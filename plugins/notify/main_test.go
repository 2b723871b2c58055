package main

import "testing"

func TestBuildScript(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		message string
		want    string
	}{
		{
			name:    "title only",
			cfg:     Config{Title: "Heartreel"},
			message: "Heart confirmed ♥",
			want:    `display notification "Heart confirmed ♥" with title "Heartreel"`,
		},
		{
			name:    "with sound",
			cfg:     Config{Title: "Heartreel", Sound: "Glass"},
			message: "hi",
			want:    `display notification "hi" with title "Heartreel" sound name "Glass"`,
		},
		{
			name:    "quotes escaped",
			cfg:     Config{Title: `say "hi"`},
			message: "x",
			want:    `display notification "x" with title "say \"hi\""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildScript(tt.cfg, tt.message); got != tt.want {
				t.Errorf("buildScript() = %q, want %q", got, tt.want)
			}
		})
	}
}
