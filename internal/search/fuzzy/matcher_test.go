package fuzzy

import "testing"

func TestProcess(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Red Shoe!", "red shoe"},
		{"  running--shoes  ", "running shoes"},
		{"Café Crème", "cafe creme"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Process(tt.in); got != tt.want {
			t.Errorf("Process(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBestMatchEmptyCandidates(t *testing.T) {
	m := BestMatch("shoe", nil)
	if m != NoMatch {
		t.Errorf("BestMatch(nil) = %+v, want NoMatch", m)
	}
	if m.Found() {
		t.Error("NoMatch must not be Found")
	}
}

func TestScoreIdentity(t *testing.T) {
	for _, s := range []string{"shoe", "red running shoe", "Laptop Stand", "x"} {
		if got := Score(s, s); got != 100 {
			t.Errorf("Score(%q, %q) = %v, want 100", s, s, got)
		}
	}
	if got := Score("Red Shoe!", "red shoe"); got != 100 {
		t.Errorf("case/punctuation insensitive score = %v, want 100", got)
	}
}

func TestScoreDisjoint(t *testing.T) {
	if got := Score("abc", "xyz"); got != 0 {
		t.Errorf("Score(abc, xyz) = %v, want 0", got)
	}
	if got := Score("", "shoe"); got != 0 {
		t.Errorf("empty query score = %v, want 0", got)
	}
}

func TestScoreMonotonicInSharedTokens(t *testing.T) {
	query := "red running shoe"
	candidates := []string{
		"blue walking boot",
		"red walking boot",
		"red running boot",
		"red running shoe",
	}
	prev := -1.0
	for _, c := range candidates {
		s := Score(query, c)
		if s <= prev {
			t.Errorf("Score(%q, %q) = %v, not above previous %v", query, c, s, prev)
		}
		if s < 0 || s > 100 {
			t.Errorf("score %v out of range", s)
		}
		prev = s
	}
}

func TestBestMatchTieKeepsEarliest(t *testing.T) {
	m := BestMatch("boot", []string{"shoe", "boot", "boot"})
	if m.Index != 1 || m.Score != 100 {
		t.Errorf("BestMatch = %+v, want index 1 score 100", m)
	}
	m = BestMatch("zzz", []string{"abc", "def"})
	if m.Index != 0 {
		t.Errorf("all-zero scores should keep the first candidate, got index %d", m.Index)
	}
}

func TestBestMatchPartialQuery(t *testing.T) {
	m := BestMatch("red shoe", []string{"Red", "Shoe", "footwear", "shoe", "red"})
	if m.Score <= 85 {
		t.Errorf("score = %v, want > 85", m.Score)
	}
	if m.Index != 0 {
		t.Errorf("index = %d, want 0", m.Index)
	}
}
