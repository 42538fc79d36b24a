package gitlibtest

import (
	"testing"
	"time"

	"github.com/open-condo-software/gitexporter/pkg/gitlib"
)

// Paths of the six-commit history in the order they first appear.
var SixCommitPaths = []string{
	"test.txt",
	"Test.txt",
	"Test.txt.link",
	"sTest.txt",
	"bin/script.js",
}

// SixCommitHistory builds the reference linear history:
// add test.txt, modify it, rename it to Test.txt, add a symlink to it,
// add sTest.txt and add an executable bin/script.js.
// It returns the repository and the commit hashes oldest first.
func SixCommitHistory(t testing.TB) (*Repo, []gitlib.Hash) {
	t.Helper()

	const (
		text1 = "Initial text"
		text2 = "Changed text"
	)

	author := func(when string) gitlib.Signature {
		return gitlib.Signature{Name: "User", Email: "user@example.com", When: mustTime(t, when)}
	}

	committer := func(when string) gitlib.Signature {
		return gitlib.Signature{Name: "Name2", Email: "user2@example.com", When: mustTime(t, when)}
	}

	repo := New(t)
	hashes := make([]gitlib.Hash, 0, len(SixCommitPaths)+1)

	repo.WriteFile("test.txt", text1)
	hashes = append(hashes, repo.CommitAs("initial commit",
		author("2005-04-07T22:13:13Z"), committer("2010-01-01T22:00:00Z")))

	repo.WriteFile("test.txt", text2)
	hashes = append(hashes, repo.CommitAs("change initial text",
		author("2005-05-07T23:13:13Z"), committer("2010-01-01T22:01:00Z")))

	repo.Remove("test.txt")
	repo.WriteFile("Test.txt", text2)
	hashes = append(hashes, repo.CommitAs("rename file",
		author("2005-06-07T23:13:13Z"), committer("2010-01-01T22:02:00Z")))

	repo.Symlink("Test.txt.link", "Test.txt")
	hashes = append(hashes, repo.CommitAs("create link",
		author("2005-07-07T23:13:13Z"), committer("2010-01-01T22:03:00Z")))

	repo.WriteFile("sTest.txt", text1)
	hashes = append(hashes, repo.CommitAs("another file",
		author("2005-08-07T23:13:13Z"), committer("2010-01-01T22:04:00Z")))

	repo.WriteExecutable("bin/script.js", "#!/usr/bin/env node\nconsole.log(911)\n")
	hashes = append(hashes, repo.CommitAs("add script!",
		author("2005-09-07T23:13:13Z"), committer("2010-01-01T22:05:00Z")))

	return repo, hashes
}

func mustTime(t testing.TB, value string) time.Time {
	t.Helper()

	when, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}

	return when
}
