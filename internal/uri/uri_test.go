package uri

import "testing"

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "Double-encoded space",
			raw:      "file:///home/user/my%2520project/a.lus",
			expected: "file:///home/user/my%20project/a.lus",
		},
		{
			name:     "Single-encoded space untouched",
			raw:      "file:///home/user/my%20project/a.lus",
			expected: "file:///home/user/my%20project/a.lus",
		},
		{
			name:     "No encoding",
			raw:      "file:///home/user/a.lus",
			expected: "file:///home/user/a.lus",
		},
		{
			name:     "Multiple occurrences",
			raw:      "file:///a%2520b/c%2520d.lus",
			expected: "file:///a%20b/c%20d.lus",
		},
		{
			name:     "Empty",
			raw:      "",
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.raw); got != tc.expected {
				t.Errorf("Normalize(%q) = %q, expected %q", tc.raw, got, tc.expected)
			}
		})
	}
}

func TestNormalizeIsStable(t *testing.T) {
	// Normalizing twice must not rewrite the identity again.
	once := Normalize("file:///a%2520b.lus")
	twice := Normalize(once)
	if once != twice {
		t.Errorf("Normalize is not idempotent: %q vs %q", once, twice)
	}
}
