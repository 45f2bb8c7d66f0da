package diff

import "testing"

func TestTextDiff(t *testing.T) {
	hunks := TextDiff("a\nb\nc\n", "a\nB\nc\nd\n")
	if len(hunks) != 1 {
		t.Fatalf("expected 1 hunk, got %d", len(hunks))
	}

	var added, removed, context int
	for _, l := range hunks[0].Lines {
		switch l.Type {
		case LineAdded:
			added++
		case LineRemoved:
			removed++
		case LineContext:
			context++
		}
	}
	if added != 2 || removed != 1 || context != 2 {
		t.Errorf("added=%d removed=%d context=%d, want 2/1/2", added, removed, context)
	}
}

func TestTextDiff_NewFile(t *testing.T) {
	hunks := TextDiff("", "one\ntwo\n")
	if len(hunks) != 1 || len(hunks[0].Lines) != 2 {
		t.Fatalf("unexpected hunks: %+v", hunks)
	}
	if hunks[0].Lines[1].NewLine != 2 {
		t.Errorf("NewLine = %d, want 2", hunks[0].Lines[1].NewLine)
	}
}

func TestTextDiff_Identical(t *testing.T) {
	if hunks := TextDiff("same\n", "same\n"); len(hunks) != 0 {
		t.Errorf("identical input should produce no hunks, got %+v", hunks)
	}
}
