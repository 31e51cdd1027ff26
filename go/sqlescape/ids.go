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

// Package sqlescape escapes identifiers that are spliced into generated SQL.
package sqlescape

import (
	"strings"

	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/vt/vterrors"
)

// EscapeID returns a backticked identifier given an input string.
// Backticks are understood by both MySQL and SQLite.
func EscapeID(in string) string {
	var buf strings.Builder
	WriteEscapeID(&buf, in)
	return buf.String()
}

// WriteEscapeID writes a backticked identifier from an input string into buf.
// Embedded backticks are doubled.
func WriteEscapeID(buf *strings.Builder, in string) {
	buf.Grow(4 + len(in))

	buf.WriteByte('`')
	for i := 0; i < len(in); i++ {
		buf.WriteByte(in[i])
		if in[i] == '`' {
			buf.WriteByte('`')
		}
	}
	buf.WriteByte('`')
}

// ValidateTableName rejects names that cannot name a sequence table: the
// empty string, names longer than 64 bytes and names with control
// characters or NUL.
func ValidateTableName(name string) error {
	if name == "" {
		return vterrors.New(codes.InvalidArgument, "empty table name")
	}
	if len(name) > 64 {
		return vterrors.Errorf(codes.InvalidArgument, "table name too long: %q", name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] == 0x7f {
			return vterrors.Errorf(codes.InvalidArgument, "invalid character in table name %q", name)
		}
	}
	return nil
}
