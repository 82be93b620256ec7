package forms

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidationError reports an argument problem detected before any request
// is built. Its message is the one returned to the caller verbatim.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + " " + e.Reason }

func missingField(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}

// argReader reads tool arguments with either permissive (intval-like) or
// strict coercion.
type argReader struct {
	args   map[string]any
	strict bool
}

// present mirrors PHP isset: the key exists and is not null.
func (a argReader) present(key string) bool {
	v, ok := a.args[key]
	return ok && v != nil
}

func (a argReader) require(keys ...string) error {
	for _, k := range keys {
		if !a.present(k) {
			return missingField(k)
		}
	}
	return nil
}

// intOr returns the integer value of key, or def when the key is absent.
func (a argReader) intOr(key string, def int) (int, error) {
	if !a.present(key) {
		return def, nil
	}
	return a.int(key)
}

func (a argReader) int(key string) (int, error) {
	v := a.args[key]
	if a.strict {
		n, ok := strictInt(v)
		if !ok {
			return 0, &ValidationError{Field: key, Reason: "must be an integer"}
		}
		return n, nil
	}
	return looseInt(v), nil
}

// text returns key as sanitized plain text, or "" when absent.
func (a argReader) text(key string) string {
	if !a.present(key) {
		return ""
	}
	return SanitizeText(textValue(a.args[key]))
}

// object returns key as a JSON object. ok is false when the value is
// something else.
func (a argReader) object(key string) (map[string]any, bool) {
	m, ok := a.args[key].(map[string]any)
	return m, ok
}

var numericPrefix = regexp.MustCompile(`^[ \t\n\r\v\f]*[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`)

// looseInt converts v the way PHP intval does: numbers truncate toward
// zero, strings use their leading numeric part (0 when there is none,
// saturating when an integer string overflows),
// booleans map to 0/1 and containers to 0 when empty, 1 otherwise.
func looseInt(v any) int {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return truncate(n)
	case float32:
		return truncate(float64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		return looseInt(n.String())
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		m := numericPrefix.FindString(n)
		if m == "" {
			return 0
		}
		m = strings.TrimLeft(m, " \t\n\r\v\f")
		// Integer strings beyond the int range saturate, as intval does.
		if i, err := strconv.ParseInt(m, 10, strconv.IntSize); err == nil || errors.Is(err, strconv.ErrRange) {
			return int(i)
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0
		}
		return truncate(f)
	case map[string]any:
		if len(n) == 0 {
			return 0
		}
		return 1
	case []any:
		if len(n) == 0 {
			return 0
		}
		return 1
	default:
		return 0
	}
}

func truncate(f float64) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0
	}
	return int(f)
}

// strictInt accepts integral numbers and base-10 integer strings only.
func strictInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.Abs(n) >= math.MaxInt64 {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

// textValue renders a scalar as a string; containers become "".
func textValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case json.Number:
		return s.String()
	case bool:
		if s {
			return "1"
		}
		return ""
	default:
		return ""
	}
}

var (
	scriptStyleBlock = regexp.MustCompile(`(?is)<(?:script|style)\b[^>]*>.*?</(?:script|style)\s*>`)
	whitespaceRun    = regexp.MustCompile(`[\r\n\t ]+`)
	percentOctet     = regexp.MustCompile(`(?i)%[a-f0-9]{2}`)
)

// SanitizeText reduces s to a single line of plain text, following the
// rules of WordPress sanitize_text_field: invalid UTF-8 is dropped, script
// and style blocks and all tags are removed, a "<" that does not open a tag
// is kept as "&lt;", whitespace runs collapse to one space, percent-encoded
// octets are removed and the result is trimmed. Other control characters
// are removed as well.
func SanitizeText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	if strings.Contains(s, "<") {
		s = scriptStyleBlock.ReplaceAllString(s, "")
		s = stripTags(s)
	}
	s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))

	found := false
	for percentOctet.MatchString(s) {
		s = percentOctet.ReplaceAllString(s, "")
		found = true
	}
	if found {
		s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	}

	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// stripTags removes every <...> span. A "<" with no ">" before the next
// "<" (or the end) does not open a tag and is encoded instead.
func stripTags(s string) string {
	var sb strings.Builder
	for {
		i := strings.IndexByte(s, '<')
		if i < 0 {
			sb.WriteString(s)
			return sb.String()
		}
		sb.WriteString(s[:i])
		rest := s[i+1:]
		end := strings.IndexByte(rest, '>')
		next := strings.IndexByte(rest, '<')
		if end < 0 || (next >= 0 && next < end) {
			sb.WriteString("&lt;")
			s = rest
			continue
		}
		s = rest[end+1:]
	}
}
