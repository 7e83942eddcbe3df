package permission

import (
	"reflect"
	"testing"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"single", "git status", []string{"git status"}},
		{"and chain", "mkdir test && cd test", []string{"mkdir test", "cd test"}},
		{"or chain", "make || make clean", []string{"make", "make clean"}},
		{"pipe", "cat f | grep x | wc -l", []string{"cat f", "grep x", "wc -l"}},
		{"semicolons", "a; b ;c", []string{"a", "b", "c"}},
		{"background", "sleep 5 & echo hi", []string{"sleep 5", "echo hi"}},
		{"subshell group", "(cd /tmp && ls)", []string{"cd /tmp", "ls"}},
		{"substitution", "echo $(whoami)", []string{"echo $(whoami)", "whoami"}},
		{"backticks", "echo `date`", []string{"echo `date`", "date"}},
		{
			"quoted operators ignored",
			`echo "a && b" ; grep 'x|y' f`,
			[]string{`echo "a && b"`, `grep 'x|y' f`},
		},
		{
			"nested substitution",
			"echo $(cat a | head -1)",
			[]string{"echo $(cat a | head -1)", "cat a", "head -1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitCommand(tt.command)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitCommand(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestNormalizeCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"git status", "git status"},
		{"  git   status  ", "git status"},
		{"FOO=bar git status", "git status"},
		{"FOO=bar BAZ=1 make build", "make build"},
		{"make > out.txt", "make"},
		{"make >> out.txt", "make"},
		{"make 2> err.log", "make"},
		{"make > out.txt 2>&1", "make"},
		{"make &> all.log", "make"},
		{"make 2>/dev/null", "make"},
		{"sort < input.txt", "sort"},
		{"FOO=1 make test > log 2>&1", "make test"},
		{`echo "hello world"`, `echo "hello world"`},
	}
	for _, tt := range tests {
		if got := NormalizeCommand(tt.in); got != tt.want {
			t.Errorf("NormalizeCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Normalization must be byte-identical at rule-save and rule-check time;
// a second pass over an already normalized command must be a fixed point.
func TestNormalizeCommand_Idempotent(t *testing.T) {
	commands := []string{
		"FOO=bar git push origin main > /dev/null 2>&1",
		"  npm   install  ",
		"make -j4 2>err.log",
	}
	for _, c := range commands {
		once := NormalizeCommand(c)
		twice := NormalizeCommand(once)
		if once != twice {
			t.Errorf("not idempotent: %q → %q → %q", c, once, twice)
		}
	}
}

func TestIsSafeCommand(t *testing.T) {
	const workdir = "/home/dev/project"
	tests := []struct {
		command string
		safe    bool
	}{
		{"pwd", true},
		{"echo hi", true},
		{"which go", true},
		{"ls", true},
		{"ls -la src", true},
		{"cd test", true},
		{"cd ./sub/dir", true},
		{"cd ..", false},
		{"cd /etc", false},
		{"ls /", false},
		{"ls ../../", false},
		{"cd /home/dev/project/sub", true},
		{"mkdir test", false},
		{"rm -rf x", false},
		{"git status", false},
	}
	for _, tt := range tests {
		if got := IsSafeCommand(tt.command, workdir); got != tt.safe {
			t.Errorf("IsSafeCommand(%q) = %v, want %v", tt.command, got, tt.safe)
		}
	}
}

func TestExpandRules(t *testing.T) {
	const workdir = "/home/dev/project"
	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{
			"mixed safe and unsafe",
			"mkdir test && cd test",
			[]string{"mkdir test"},
		},
		{
			"all safe yields none",
			"pwd && ls && cd sub",
			nil,
		},
		{
			"dedup",
			"make && make",
			[]string{"make"},
		},
		{
			"env and redirect stripped",
			"FOO=1 make > log && git push",
			[]string{"make", "git push"},
		},
		{
			"pipe parts persisted individually",
			"cat f | grep x",
			[]string{"cat f", "grep x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandRules(tt.command, workdir)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExpandRules(%q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}
