package logging

import "testing"

func TestOrNopHandlesNil(t *testing.T) {
	t.Parallel()

	logger := OrNop(nil)
	if logger == nil {
		t.Fatalf("expected non-nil logger")
	}
	// Must not panic.
	logger.Debug("debug %d", 1)
	logger.Error("error %s", "x")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"debug":   DEBUG,
		"info":    INFO,
		"warn":    WARN,
		"warning": WARN,
		"error":   ERROR,
		"bogus":   INFO,
		"":        INFO,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLevelString(t *testing.T) {
	t.Parallel()

	if levelString(WARN) != "WARN" {
		t.Fatalf("expected WARN")
	}
	if levelString(Level(42)) != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for out-of-range level")
	}
}
