package cli

import "testing"

func TestSuggest(t *testing.T) {
	commands := []string{"log", "cat-file", "diff", "status", "version"}

	tests := []struct {
		input string
		want  string
	}{
		{"lg", "log"},          // missing a character, in-order
		{"dif", "diff"},        // prefix
		{"stat", "status"},     // prefix
		{"versn", "version"},   // missing a character, in-order
		{"version", "version"}, // exact match
		{"zzzzzzzzzz", ""},     // no subsequence match at all
		{"", ""},               // empty input
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := Suggest(tt.input, commands)
			if got != tt.want {
				t.Errorf("Suggest(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSuggestNoCandidates(t *testing.T) {
	if got := Suggest("log", nil); got != "" {
		t.Errorf("Suggest with no candidates = %q, want empty", got)
	}
}
