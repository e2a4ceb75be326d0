package testutil

import "testing"

// Given, When and Then name nested subtests so scenario tests read as
// "Given x/When y/Then z" in test output.
func Given(t *testing.T, setup string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Given", setup, fn)
}

func When(t *testing.T, action string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "When", action, fn)
}

func Then(t *testing.T, outcome string, fn func(t *testing.T)) {
	t.Helper()
	step(t, "Then", outcome, fn)
}

func step(t *testing.T, keyword, desc string, fn func(t *testing.T)) {
	t.Helper()
	t.Run(keyword+" "+desc, fn)
}
