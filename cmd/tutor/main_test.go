package main

import (
	"bytes"
	"strings"
	"testing"
)

const sampleTranscript = `[AI_ANSWER]Przeczytaj tekst.
[STUDENT_ANSWER]goes
[AI_QUESTION]Dlaczego?`

func runTranscript(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(sampleTranscript))
	cmd.SetArgs(append([]string{"transcript"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTranscriptCommands(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"parse yaml", []string{"parse", "-"}, []string{"- type: AI_ANSWER", "is_user: true", "content: Dlaczego?"}},
		{"parse json", []string{"parse", "--format", "json", "-"}, []string{`"type": "STUDENT_ANSWER"`, `"isUser": false`}},
		{"last", []string{"last", "-"}, []string{"AI_QUESTION\n"}},
		{"trim", []string{"trim", "-"}, []string{"[AI_ANSWER]Przeczytaj tekst.\n[STUDENT_ANSWER]goes\n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runTranscript(t, tt.args...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output lacks %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestTranscriptUnknownFormat(t *testing.T) {
	if _, err := runTranscript(t, "parse", "--format", "xml", "-"); err == nil {
		t.Error("expected error for unknown format")
	}
}
