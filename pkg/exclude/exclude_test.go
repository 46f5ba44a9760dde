package exclude

import "testing"

func TestJudgeDefaultBlacksDotfiles(t *testing.T) {
	c := NewChecker(NewList())

	cases := map[string]bool{
		"notes/readme.md":  true,
		".git/config":       false,
		"notes/.hidden.txt": false,
		"~backup.txt":       false,
	}

	for path, want := range cases {
		if got := c.Judge(path); got != want {
			t.Errorf("Judge(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestJudgeCustomBlacklist(t *testing.T) {
	list := NewList()
	list.Blacks = append(list.Blacks, `\.tmp$`)
	c := NewChecker(list)

	if c.Judge("scratch/file.tmp") {
		t.Error("expected file.tmp to be excluded")
	}
	if !c.Judge("scratch/file.md") {
		t.Error("expected file.md to be included")
	}
}

func TestJudgeWhitelistOverridesBlacklistPerComponent(t *testing.T) {
	list := NewList()
	list.Blacks = append(list.Blacks, `^node_modules$`)
	list.Whites = append(list.Whites, `^node_modules$`)
	c := NewChecker(list)

	if !c.Judge("node_modules/pkg/index.js") {
		t.Error("expected whitelisted component to override blacklist match")
	}
}

func TestJudgeNestedPathAnyComponentExcludes(t *testing.T) {
	c := NewChecker(NewList())

	if c.Judge("a/.git/b/c.md") {
		t.Error("expected a dotfile component anywhere in the path to exclude it")
	}
}
