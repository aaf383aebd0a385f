package privilege

import "testing"

func TestMatchesExact(t *testing.T) {
	if !Matches("users.create", "users.create") {
		t.Fatalf("expected exact slug to match itself")
	}
	if Matches("users.create", "users.delete") {
		t.Fatalf("different slugs must not match")
	}
	if Matches("users.create", "users.createx") {
		t.Fatalf("prefix must not match without wildcard")
	}
}

func TestMatchesCaseSensitive(t *testing.T) {
	if Matches("users.create", "Users.Create") {
		t.Fatalf("matching must be case sensitive")
	}
}

func TestMatchesWildcard(t *testing.T) {
	cases := []struct {
		pattern   string
		candidate string
		want      bool
	}{
		{"users.*", "users.create", true},
		{"users.*", "users.delete", true},
		{"users.*", "users.", true},
		{"users.*", "posts.create", false},
		{"*", "anything.at.all", true},
		{"*", "", true},
		{"*.view", "users.view", true},
		{"*.view", "users.viewer", false},
		{"reports.*.export", "reports.sales.export", true},
		{"reports.*.export", "reports.sales.create", false},
	}
	for _, c := range cases {
		if got := Matches(c.pattern, c.candidate); got != c.want {
			t.Fatalf("Matches(%q, %q) = %v, want %v", c.pattern, c.candidate, got, c.want)
		}
	}
}

// The wildcard crosses dot boundaries: users.* covers grandchildren too.
func TestMatchesWildcardCrossesSegments(t *testing.T) {
	if !Matches("users.*", "users.admin.delete") {
		t.Fatalf("wildcard must match across segments")
	}
}

func TestMatchesDotIsLiteral(t *testing.T) {
	if Matches("users.create", "usersXcreate") {
		t.Fatalf("dot must not act as a regexp metacharacter")
	}
	if Matches("a.c", "abc") {
		t.Fatalf("dot must be escaped")
	}
}

func TestIsWildcardSlug(t *testing.T) {
	if !IsWildcardSlug("users.*") || !IsWildcardSlug("*") {
		t.Fatalf("slugs containing * are wildcards")
	}
	if IsWildcardSlug("users.create") {
		t.Fatalf("literal slug is not a wildcard")
	}
}
