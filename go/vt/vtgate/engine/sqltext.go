/*
Copyright 2019 The Vitess Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import "strings"

// NormalizeSpace collapses runs of white space between tokens so that
// queries differing only in formatting share a plan. Quoted strings,
// quoted identifiers and comments are copied verbatim, and a line comment
// keeps its terminating newline.
func NormalizeSpace(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	space := false
	for i := 0; i < len(query); {
		if isSpace(query[i]) {
			space = true
			i++
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		end := tokenEnd(query, i)
		b.WriteString(query[i:end])
		i = end
	}
	return b.String()
}

// tokenEnd returns the end of the token starting at query[i]. Only quoted
// runs and comments span more than one byte.
func tokenEnd(query string, i int) int {
	switch c := query[i]; {
	case c == '\'' || c == '"' || c == '`':
		for j := i + 1; j < len(query); j++ {
			switch query[j] {
			case '\\':
				if c != '`' {
					j++
				}
			case c:
				return j + 1
			}
		}
		return len(query)
	case c == '#' || (c == '-' && strings.HasPrefix(query[i:], "--") && (i+2 == len(query) || isSpace(query[i+2]))):
		if n := strings.IndexByte(query[i:], '\n'); n >= 0 {
			return i + n + 1
		}
		return len(query)
	case c == '/' && strings.HasPrefix(query[i:], "/*"):
		if n := strings.Index(query[i+2:], "*/"); n >= 0 {
			return i + 2 + n + 2
		}
		return len(query)
	}
	return i + 1
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}

// Words returns the lower-cased words of query, skipping quoted strings,
// quoted identifiers and comments.
func Words(query string) []string {
	var words []string
	start := -1
	flush := func(end int) {
		if start >= 0 {
			words = append(words, strings.ToLower(query[start:end]))
			start = -1
		}
	}
	for i := 0; i < len(query); {
		end := tokenEnd(query, i)
		if end == i+1 && isWordByte(query[i]) {
			if start < 0 {
				start = i
			}
		} else {
			flush(i)
		}
		i = end
	}
	flush(len(query))
	return words
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
