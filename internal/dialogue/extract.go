package dialogue

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"
)

// Models sometimes wrap their reply in a JSON object or array. These are
// the keys probed for the actual text, in order of preference.
var (
	objectTextFields = []string{"response", "message", "question", "summary", "text", "content", "answer"}
	arrayTextFields  = []string{"予想", "response", "message", "question", "summary", "text", "content"}
)

// Reply is a raw completion result: either PlainText or an Envelope.
type Reply interface {
	// Text returns the learner-facing text and whether any was found.
	Text() (string, bool)
}

// PlainText is a reply that is not a JSON envelope.
type PlainText string

// Text returns the reply unchanged.
func (p PlainText) Text() (string, bool) { return string(p), true }

// Envelope is a reply shaped as a JSON object or array.
type Envelope struct {
	fields []envelopeField
	items  []json.RawMessage
	array  bool
}

type envelopeField struct {
	key   string
	value json.RawMessage
}

// Text probes the envelope for text. Objects yield the first preferred
// string field, else the first non-blank string field. Arrays yield one
// line per item.
func (e Envelope) Text() (string, bool) {
	if e.array {
		return e.arrayText()
	}
	return objectText(e.fields, objectTextFields)
}

func (e Envelope) arrayText() (string, bool) {
	var lines []string
	for _, item := range e.items {
		if s, ok := jsonString(item); ok {
			lines = append(lines, s)
			continue
		}
		fields, ok := decodeObject(item)
		if !ok {
			continue
		}
		if s, ok := objectText(fields, arrayTextFields); ok {
			lines = append(lines, s)
		}
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

func objectText(fields []envelopeField, preferred []string) (string, bool) {
	for _, name := range preferred {
		for _, f := range fields {
			if f.key != name {
				continue
			}
			if s, ok := jsonString(f.value); ok {
				return s, true
			}
		}
	}
	for _, f := range fields {
		if s, ok := jsonString(f.value); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// ParseReply classifies raw completion text.
func ParseReply(raw string) Reply {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}"):
		if fields, ok := decodeObject([]byte(trimmed)); ok {
			return Envelope{fields: fields}
		}
	case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
			return Envelope{items: items, array: true}
		}
	}
	return PlainText(raw)
}

// ExtractPlainText unwraps JSON envelopes until the text stops changing.
// Text that is not an envelope, or an envelope without usable text, is
// returned as is. Each pass removes one layer of JSON, so the loop ends.
func ExtractPlainText(raw string) string {
	for {
		next, ok := ParseReply(raw).Text()
		if !ok || next == raw {
			return raw
		}
		raw = next
	}
}

// decodeObject reads a JSON object keeping key order.
func decodeObject(data []byte) ([]envelopeField, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}

	var fields []envelopeField
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		fields = append(fields, envelopeField{key: key, value: value})
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return fields, true
}

func jsonString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

var markdownRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "$1"},
	{regexp.MustCompile(`__(.*?)__`), "$1"},
	{regexp.MustCompile(`\*(.*?)\*`), "$1"},
	{regexp.MustCompile(`_(.*?)_`), "$1"},
	{regexp.MustCompile(`(?m)^\s*[*+-]\s+`), ""},
	{regexp.MustCompile(`(?m)^\s*\d+\.\s+`), ""},
	{regexp.MustCompile(`(?m)^#{1,6}\s*`), ""},
	{regexp.MustCompile("(?s)```.*?```"), ""},
	{regexp.MustCompile("`(.*?)`"), "$1"},
	{regexp.MustCompile(`(?m)^\s*>\s*`), ""},
	{regexp.MustCompile(`\s+`), " "},
}

// StripMarkdown removes emphasis, list markers, headings, code and quotes,
// and collapses whitespace to single spaces.
func StripMarkdown(text string) string {
	for _, r := range markdownRules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return strings.TrimSpace(text)
}

// CleanReply turns raw completion text into what the learner sees.
func CleanReply(raw string) string {
	return StripMarkdown(ExtractPlainText(raw))
}
