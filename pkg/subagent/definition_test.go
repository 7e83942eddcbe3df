package subagent

import (
	"reflect"
	"testing"
)

func TestParseContent(t *testing.T) {
	content := `---
name: code-reviewer
description: Reviews code changes for correctness and style.
tools: Read, Bash
model: inherit
---

You are a meticulous code reviewer.

Focus on correctness first.`

	def, err := ParseContent([]byte(content), "/agents/code-reviewer.md")
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "code-reviewer" {
		t.Errorf("name = %q", def.Name)
	}
	if def.Description != "Reviews code changes for correctness and style." {
		t.Errorf("description = %q", def.Description)
	}
	if !reflect.DeepEqual(def.Tools, []string{"Read", "Bash"}) {
		t.Errorf("tools = %v", def.Tools)
	}
	if !def.InheritsModel() {
		t.Error("model: inherit should inherit")
	}
	if def.Prompt != "You are a meticulous code reviewer.\n\nFocus on correctness first." {
		t.Errorf("prompt = %q", def.Prompt)
	}
}

func TestParseContentToolsAsList(t *testing.T) {
	content := `---
description: Runs tests.
tools:
  - Bash
  - Read
---
body`
	def, err := ParseContent([]byte(content), "/agents/test-runner.md")
	if err != nil {
		t.Fatal(err)
	}
	// Name derived from the file name when frontmatter omits it.
	if def.Name != "test-runner" {
		t.Errorf("name = %q", def.Name)
	}
	if !reflect.DeepEqual(def.Tools, []string{"Bash", "Read"}) {
		t.Errorf("tools = %v", def.Tools)
	}
}

func TestParseContentErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		path    string
	}{
		{"no frontmatter", "just a prompt", "/a/x.md"},
		{"missing description", "---\nname: x\n---\nbody", "/a/x.md"},
		{"bad name", "---\nname: Not_Valid\ndescription: d\n---\nbody", "/a/x.md"},
		{"bad yaml", "---\nname: [unclosed\n---\nbody", "/a/x.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseContent([]byte(tt.content), tt.path); err == nil {
				t.Error("ParseContent should fail")
			}
		})
	}
}

func TestParseContentNoToolsInheritsAll(t *testing.T) {
	content := "---\nname: helper\ndescription: Helps.\n---\nprompt"
	def, err := ParseContent([]byte(content), "/a/helper.md")
	if err != nil {
		t.Fatal(err)
	}
	if def.Tools != nil {
		t.Errorf("tools = %v, want nil (inherit)", def.Tools)
	}
}
