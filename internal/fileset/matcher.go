package fileset

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// ErrInvalidPattern is returned when a wildcard alternative translates into
// an expression the regexp engine rejects.
var ErrInvalidPattern = errors.New("invalid wildcard pattern")

// Fragments emitted by Translate. They keep the exact shape of the
// historical translator so existing expressions match the same files.
const (
	anyRun     = `.*`
	segmentRun = `[^/\\]*`
	anyChar    = `.`
	literalDot = `\.`
	separators = `[\\|/]+`
)

type starState int

const (
	idle starState = iota
	pendingStar
)

// Matcher is a compiled wildcard alternative.
type Matcher struct {
	pattern string
	re      *regexp.Regexp
}

// Translate converts a normalized wildcard alternative into a regular
// expression body. Characters other than '*', '?', '.', '/' and '\' are
// copied through unescaped, so regexp metacharacters such as '+', '(' or
// '[' keep their regexp meaning.
func Translate(pattern string) string {
	var sb strings.Builder
	state := idle

	runes := []rune(pattern)
	for i, c := range runes {
		if c == '*' {
			switch {
			case state == pendingStar:
				sb.WriteString(anyRun)
				state = idle
			case i+1 == len(runes):
				sb.WriteString(segmentRun)
			default:
				state = pendingStar
			}
			continue
		}

		if state == pendingStar {
			sb.WriteString(segmentRun)
			state = idle
		}

		switch c {
		case '?':
			sb.WriteString(anyChar)
		case '.':
			sb.WriteString(literalDot)
		case '\\':
			// Only reachable when the caller skipped normalization.
			sb.WriteByte('/')
		case '/':
			sb.WriteString(separators)
		default:
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

// Compile translates pattern and compiles it into a full-match predicate.
func Compile(pattern string) (*Matcher, error) {
	return compile(pattern, Translate(pattern))
}

// CompileUnder compiles pattern as a path below the literal directory dir.
// Only pattern is wildcard syntax; every character of dir matches itself.
func CompileUnder(dir, pattern string) (*Matcher, error) {
	if dir == "" {
		return Compile(pattern)
	}
	return compile(path.Join(dir, pattern), QuoteDir(dir)+Translate(pattern))
}

// QuoteDir returns an expression matching the slash-separated directory
// dir followed by a separator run.
func QuoteDir(dir string) string {
	segments := strings.Split(strings.TrimSuffix(dir, "/"), "/")
	for i, s := range segments {
		segments[i] = regexp.QuoteMeta(s)
	}
	return strings.Join(segments, separators) + separators
}

func compile(pattern, expr string) (*Matcher, error) {
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}
	return &Matcher{pattern: pattern, re: re}, nil
}

// Matches reports whether the whole of path satisfies the pattern.
func (m *Matcher) Matches(path string) bool {
	return m.re.MatchString(path)
}

// Pattern returns the wildcard alternative the matcher was built from.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// String returns the anchored regular expression.
func (m *Matcher) String() string {
	return m.re.String()
}
