package ui

import (
	"strings"
	"testing"
)

func TestColorFor(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		tty  bool
		want bool
	}{
		{"tty default", nil, true, true},
		{"pipe default", nil, false, false},
		{"no color beats force", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, true, false},
		{"forced without tty", map[string]string{"CLICOLOR_FORCE": "1"}, false, true},
		{"clicolor off", map[string]string{"CLICOLOR": "0"}, true, false},
		{"clicolor on keeps tty rule", map[string]string{"CLICOLOR": "1"}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenv := func(k string) string { return tt.env[k] }
			if got := colorFor(getenv, tt.tty); got != tt.want {
				t.Errorf("colorFor = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldUseColor_NoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if ShouldUseColor() {
		t.Error("NO_COLOR must disable color")
	}
}

func TestRenderSeverity(t *testing.T) {
	saved := noColor
	t.Cleanup(func() { noColor = saved })

	noColor = true
	tests := []struct {
		sev  int
		want string
	}{
		{0, "0 debug"},
		{5, "5 medium"},
		{6, "6"},
		{10, "10 emergency"},
	}
	for _, tt := range tests {
		if got := RenderSeverity(tt.sev); got != tt.want {
			t.Errorf("RenderSeverity(%d) = %q, want %q", tt.sev, got, tt.want)
		}
	}

	noColor = false
	if got := RenderSeverity(9); !strings.HasPrefix(got, "\x1b[38;5;197m") {
		t.Errorf("critical severity not colored: %q", got)
	}
	if got := RenderSeverity(3); got != "3" {
		t.Errorf("mid severity should be plain, got %q", got)
	}
}
