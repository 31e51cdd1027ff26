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

// Package sqltypes implements the values and result sets exchanged with
// backend shards.
package sqltypes

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/grpc/codes"

	"vitess.io/shardcore/go/vt/vterrors"
)

// Type is the SQL type of a Value.
type Type int

// Supported types.
const (
	Null Type = iota
	Int64
	Uint64
	Float64
	VarChar
	VarBinary
)

var typeNames = map[Type]string{
	Null:      "NULL",
	Int64:     "INT64",
	Uint64:    "UINT64",
	Float64:   "FLOAT64",
	VarChar:   "VARCHAR",
	VarBinary: "VARBINARY",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// IsIntegral returns true for the integer types.
func (t Type) IsIntegral() bool {
	return t == Int64 || t == Uint64
}

// Value can store any SQL value. A NULL is represented by the zero value.
type Value struct {
	typ Type
	val []byte
}

// NULL represents the NULL value.
var NULL = Value{}

// MakeTrusted makes a new Value based on the type. It does not validate
// val against typ.
func MakeTrusted(typ Type, val []byte) Value {
	if typ == Null {
		return NULL
	}
	return Value{typ: typ, val: val}
}

// NewInt64 builds an Int64 Value.
func NewInt64(v int64) Value {
	return MakeTrusted(Int64, strconv.AppendInt(nil, v, 10))
}

// NewUint64 builds an Uint64 Value.
func NewUint64(v uint64) Value {
	return MakeTrusted(Uint64, strconv.AppendUint(nil, v, 10))
}

// NewFloat64 builds a Float64 Value.
func NewFloat64(v float64) Value {
	return MakeTrusted(Float64, strconv.AppendFloat(nil, v, 'g', -1, 64))
}

// NewVarChar builds a VarChar Value.
func NewVarChar(v string) Value {
	return MakeTrusted(VarChar, []byte(v))
}

// NewVarBinary builds a VarBinary Value.
func NewVarBinary(v string) Value {
	return MakeTrusted(VarBinary, []byte(v))
}

// FromAny converts a value scanned by database/sql into a Value.
func FromAny(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return NULL, nil
	case int64:
		return NewInt64(v), nil
	case int:
		return NewInt64(int64(v)), nil
	case int32:
		return NewInt64(int64(v)), nil
	case uint64:
		return NewUint64(v), nil
	case float64:
		return NewFloat64(v), nil
	case bool:
		if v {
			return NewInt64(1), nil
		}
		return NewInt64(0), nil
	case []byte:
		return MakeTrusted(VarBinary, bytes.Clone(v)), nil
	case string:
		return NewVarChar(v), nil
	case time.Time:
		return NewVarChar(v.Format(time.DateTime)), nil
	}
	return NULL, vterrors.Errorf(codes.InvalidArgument, "unexpected type %T: %v", v, v)
}

// Type returns the type of Value.
func (v Value) Type() Type {
	return v.typ
}

// Raw returns the internal representation of the value.
func (v Value) Raw() []byte {
	return v.val
}

// IsNull returns true if Value is null.
func (v Value) IsNull() bool {
	return v.typ == Null
}

// ToString returns the value as string. NULL is returned as "".
func (v Value) ToString() string {
	return string(v.val)
}

// ToInt64 returns the value as an int64. Text values are parsed, which
// lets counters stored by drivers that return bytes be read back.
func (v Value) ToInt64() (int64, error) {
	if v.IsNull() {
		return 0, vterrors.New(codes.InvalidArgument, "cannot convert NULL to int64")
	}
	n, err := strconv.ParseInt(string(v.val), 10, 64)
	if err != nil {
		return 0, vterrors.Errorf(codes.InvalidArgument, "cannot parse int64 from %q: %v", v.val, err)
	}
	return n, nil
}

// Equal compares the type and contents of two values.
func (v Value) Equal(other Value) bool {
	return v.typ == other.typ && bytes.Equal(v.val, other.val)
}

// String returns a printable version of the value.
func (v Value) String() string {
	if v.IsNull() {
		return "NULL"
	}
	if v.typ.IsIntegral() || v.typ == Float64 {
		return fmt.Sprintf("%v(%s)", v.typ, v.val)
	}
	return fmt.Sprintf("%v(%q)", v.typ, v.val)
}
