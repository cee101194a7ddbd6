// Package chat encodes and decodes tutoring transcripts.
//
// A transcript is one string made of segments. Each segment starts with a
// marker line such as "[AI_ANSWER]" and runs until the next marker line or
// the end of the string. Only the five markers in model.Markers are
// recognised, and only at the very start of a line.
package chat

import (
	"strings"

	"github.com/pavelanni/tutor/internal/model"
)

// Block is one parsed transcript segment.
type Block struct {
	Type    model.Marker `json:"type" yaml:"type"`
	Content string       `json:"content" yaml:"content"`
	Title   string       `json:"title" yaml:"title"`
	IsUser  bool         `json:"isUser" yaml:"is_user"`
}

var titles = map[model.Marker]string{
	model.MarkerAIAnswer:        "Polecenie:",
	model.MarkerAIQuestion:      "Pytanie dodatkowe:",
	model.MarkerAIUserSolution:  "Nowe Rozwiązanie Ucznia:",
	model.MarkerStudentAnswer:   "Moja Odpowiedź:",
	model.MarkerStudentQuestion: "Moje Pytanie:",
}

// Title returns the display label for a marker.
func Title(m model.Marker) string {
	return titles[m]
}

func newBlock(m model.Marker, content string) Block {
	return Block{
		Type:    m,
		Content: content,
		Title:   Title(m),
		IsUser:  m.IsStudent(),
	}
}

// markerAt returns the marker that opens line and the rest of the line after it.
func markerAt(line string) (model.Marker, string, bool) {
	if !strings.HasPrefix(line, "[") {
		return "", "", false
	}
	for _, m := range model.Markers {
		if rest, ok := strings.CutPrefix(line, m.Tag()); ok {
			return m, rest, true
		}
	}
	return "", "", false
}

// Parse splits a transcript into blocks in conversation order.
// Segments whose trimmed content is empty produce no block.
func Parse(text string) []Block {
	var (
		blocks  []Block
		current model.Marker
		open    bool
		buf     []string
	)
	flush := func() {
		if !open {
			return
		}
		if content := strings.TrimSpace(strings.Join(buf, "\n")); content != "" {
			blocks = append(blocks, newBlock(current, content))
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if m, rest, ok := markerAt(line); ok {
			flush()
			current, open = m, true
			buf = append(buf[:0], rest)
			continue
		}
		if open {
			buf = append(buf, line)
		}
	}
	flush()
	return blocks
}

// LastMarker returns the last marker line in text, even when its segment is empty.
// It scans lines directly rather than relying on Parse, which drops empty segments.
func LastMarker(text string) (model.Marker, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	var (
		last  model.Marker
		found bool
	)
	for _, line := range strings.Split(text, "\n") {
		if m, _, ok := markerAt(line); ok {
			last, found = m, true
		}
	}
	return last, found
}

// Serialize writes blocks back as "[TYPE]content" segments joined by a single newline.
// Parse(Serialize(b)) yields the same types and contents as b, but Serialize does not
// restore the original spacing of the transcript b was parsed from.
func Serialize(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.Type.Tag()+b.Content)
	}
	return strings.Join(parts, "\n")
}

// RemoveLastBlock drops the final block of a transcript and re-serializes the rest.
func RemoveLastBlock(text string) string {
	blocks := Parse(text)
	if len(blocks) <= 1 {
		return ""
	}
	return Serialize(blocks[:len(blocks)-1])
}

// Append adds a backend fragment to a transcript, separated by a blank line.
func Append(transcript, fragment string) string {
	if transcript == "" {
		return fragment
	}
	return transcript + "\n\n" + fragment
}

// FormatTurn renders a student message as a transcript segment.
func FormatTurn(mode model.Marker, text string) string {
	return mode.Tag() + strings.TrimSpace(text)
}

// StudentBlock builds the block shown for a student message before the backend replies.
func StudentBlock(mode model.Marker, text string) Block {
	return newBlock(mode, strings.TrimSpace(text))
}

// NewRobotBlocks returns the AI blocks of all that are beyond those already in existing.
// AI blocks are assumed to only ever be appended.
func NewRobotBlocks(all, existing []Block) []Block {
	known := countRobot(existing)
	var fresh []Block
	seen := 0
	for _, b := range all {
		if b.IsUser {
			continue
		}
		seen++
		if seen > known {
			fresh = append(fresh, b)
		}
	}
	return fresh
}

func countRobot(blocks []Block) int {
	n := 0
	for _, b := range blocks {
		if !b.IsUser {
			n++
		}
	}
	return n
}

// Splice inserts fresh right after the last user block of blocks.
// Without any user block fresh is appended. The input slice is not modified.
func Splice(blocks, fresh []Block) []Block {
	at := len(blocks)
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].IsUser {
			at = i + 1
			break
		}
	}
	out := make([]Block, 0, len(blocks)+len(fresh))
	out = append(out, blocks[:at]...)
	out = append(out, fresh...)
	out = append(out, blocks[at:]...)
	return out
}
