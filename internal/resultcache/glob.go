package resultcache

import (
	"fmt"
	"regexp"
	"strings"
)

// GlobRegexp translates a glob into an anchored regular expression source.
// '*' matches any run of characters including '/', '?' matches one
// character, '[...]' is a class ('[!...]' negated), and '\' escapes the
// next character. The output is valid for both Go regexp and the
// PostgreSQL '~' operator.
func GlobRegexp(pattern string) (string, error) {
	var b strings.Builder
	b.WriteByte('^')
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		case '\\':
			if i+1 == len(runes) {
				return "", fmt.Errorf("glob %q: trailing escape", pattern)
			}
			i++
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		case '[':
			end := i + 1
			if end < len(runes) && runes[end] == '!' {
				end++
			}
			if end < len(runes) && runes[end] == ']' {
				end++
			}
			for end < len(runes) && runes[end] != ']' {
				end++
			}
			if end >= len(runes) {
				return "", fmt.Errorf("glob %q: unterminated character class", pattern)
			}
			body := runes[i+1 : end]
			b.WriteByte('[')
			if len(body) > 0 && body[0] == '!' {
				b.WriteByte('^')
				body = body[1:]
			}
			for _, c := range body {
				if c == '\\' || c == '[' || c == ']' || c == '^' {
					b.WriteByte('\\')
				}
				b.WriteRune(c)
			}
			b.WriteByte(']')
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return b.String(), nil
}

// CompileGlob compiles a glob for in-process matching.
func CompileGlob(pattern string) (*regexp.Regexp, error) {
	src, err := GlobRegexp(pattern)
	if err != nil {
		return nil, err
	}
	return regexp.Compile(src)
}
