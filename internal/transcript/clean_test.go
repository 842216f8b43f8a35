package transcript

import "testing"

func TestCleanFragment(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"strips markup", "<noise> hello", "hello"},
		{"strips leading symbols", "...hello", "hello"},
		{"collapses whitespace", "  multiple   spaces here ", "multiple spaces here"},
		{"keeps inverted punctuation", "¿qué tal?", "¿qué tal?"},
		{"empty after cleaning", "<breath>...", ""},
		{"plain text untouched", "hello world", "hello world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanFragment(tt.input); got != tt.want {
				t.Errorf("CleanFragment(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanFinal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"space before punctuation", "hello , world !", "hello, world!"},
		{"adjacent punctuation", "wait . . okay", "wait.. okay"},
		{"collapses whitespace", "so   many    spaces", "so many spaces"},
		{"trims ends", "  hello  ", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanFinal(tt.input); got != tt.want {
				t.Errorf("CleanFinal(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		next     string
		want     string
	}{
		{"empty existing", "", "hi", "hi"},
		{"empty next", "hello", "", "hello"},
		{"word continuation", "hel", "lo", "hello"},
		{"new capitalized word", "hello", "World", "hello World"},
		{"existing trailing space", "hello ", "world", "hello world"},
		{"punctuation glues", "hello", "!", "hello!"},
		{"apostrophe continuation", "don'", "t", "don't"},
		{"comma then word", "well", ", yes", "well, yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Join(tt.existing, tt.next); got != tt.want {
				t.Errorf("Join(%q, %q) = %q, want %q", tt.existing, tt.next, got, tt.want)
			}
		})
	}
}
