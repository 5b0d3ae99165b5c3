package jsonx

import "testing"

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"raw object", `{"a":1}`, `{"a":1}`},
		{"fenced json block", "Here you go:\n```json\n{\"a\": 1}\n```\ndone", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding prose", `Sure! The answer is {"needs_tools": true} as requested.`, `{"needs_tools": true}`},
		{"nested braces", `prefix {"a": {"b": 2}} suffix`, `{"a": {"b": 2}}`},
		{"brace inside string", `{"a": "}"}`, `{"a": "}"}`},
		{"no object", "nothing here", ""},
		{"unbalanced", `{"a": 1`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractObject(tt.in); got != tt.want {
				t.Errorf("ExtractObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractArray(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"raw array", `[1,2]`, `[1,2]`},
		{"fenced", "```json\n[{\"x\": 1}]\n```", `[{"x": 1}]`},
		{"prose wrapped", `The paths are: [{"path_type": "a"}] as shown.`, `[{"path_type": "a"}]`},
		{"none", "no array", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractArray(tt.in); got != tt.want {
				t.Errorf("ExtractArray(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
