package logx

import "testing"

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "WARN", "", "bogus"} {
		logger, err := New(level)
		if err != nil {
			t.Fatalf("New(%q): %v", level, err)
		}
		if logger == nil {
			t.Fatalf("New(%q) returned nil logger", level)
		}
	}

	logger, _ := New("warn")
	if logger.Core().Enabled(-1) {
		t.Fatalf("warn logger should not enable debug")
	}
}
