package expr

import (
	"regexp"
	"strings"
)

var (
	hyphenStartOrEndRe = regexp.MustCompile(`(^|[^ ])-([^ ]|$)`)
	hyphenMiddleRe     = regexp.MustCompile(`([^ ])-([^ ])`)
)

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdent(r rune) bool {
	return r == '_' || isDigit(r) || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// pathStart returns the index where the dotted path containing i begins.
func pathStart(s []rune, i int) int {
	for i > 0 && (isIdent(s[i-1]) || s[i-1] == '.') {
		i--
	}
	return i
}

// FormatKey maps a memory key to an expr identifier: dots and hyphens
// inside names become underscores, so "llm.tool-calls" is "llm_tool_calls".
func FormatKey(key string) string {
	key = strings.ReplaceAll(key, ".", "_")
	key = hyphenStartOrEndRe.ReplaceAllString(key, "${1}_${2}")
	key = hyphenMiddleRe.ReplaceAllString(key, "${1}_${2}")
	return key
}

// FormatExpression rewrites dotted memory paths in source to their
// FormatKey form. String literals, numeric literals, optional chaining
// (?.) and predicate element access (#.) are left alone, as are hyphens
// inside call arguments where they are subtraction.
func FormatExpression(source string) string {
	out := []rune(source)
	depth := 0
	var quote rune
	escaped := false

	for i, r := range out {
		switch {
		case escaped:
			escaped = false
			continue
		case quote != 0 && quote != '`' && r == '\\':
			escaped = true
			continue
		case quote != 0:
			if r == quote {
				quote = 0
			}
			continue
		case r == '"' || r == '\'' || r == '`':
			quote = r
			continue
		}

		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case '.':
			if i > 0 && (out[i-1] == '?' || out[i-1] == '#') {
				continue
			}
			if i > 0 && i < len(out)-1 && isDigit(out[i-1]) && isDigit(out[i+1]) {
				continue
			}
			// _chain and _result are real objects, not flattened paths
			if start := pathStart(out, i); out[start] == '_' {
				continue
			}
			out[i] = '_'
		case '-':
			if depth > 0 || i == 0 || i == len(out)-1 {
				continue
			}
			if hyphenMiddleRe.MatchString(string(out[i-1 : i+2])) {
				out[i] = '_'
			}
		}
	}
	return string(out)
}
