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

package vtgate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"vitess.io/shardcore/go/vt/srvtopo"
	"vitess.io/shardcore/go/vt/vtgate/engine"
)

// planKey is the plan cache key of query planned against keyspace.
func planKey(keyspace, query string) string {
	return keyspace + ":" + engine.NormalizeSpace(query)
}

// Fingerprint returns the consolidation key of a query: two requests with
// the same fingerprint return the same rows. It covers the query text, the
// type and value of every bind variable and the target shards, in order.
func Fingerprint(query string, bindVars []any, shards []*srvtopo.ResolvedShard) string {
	var b strings.Builder
	b.WriteString(engine.NormalizeSpace(query))
	for _, bv := range bindVars {
		fmt.Fprintf(&b, "\x00%T:%v", bv, bv)
	}
	b.WriteString("\x00@")
	for i, rs := range shards {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(rs.String())
	}
	return b.String()
}

// FingerprintHash is a short form of a fingerprint for logs.
func FingerprintHash(fingerprint string) string {
	return strconv.FormatUint(xxhash.Sum64String(fingerprint), 16)
}
