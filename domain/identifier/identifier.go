// Package identifier implements the deterministic public-id → db-id
// mapping used by the incident and ticket stores (spec §3.6): external
// callers use free-form strings, persistence always uses a uuid.
package identifier

import "github.com/google/uuid"

// DBID maps a public identifier to the uuid used for persistence. If s
// already parses as a uuid it is returned verbatim; otherwise a
// namespaced v5 uuid is derived from it (DNS namespace, s as name),
// making the mapping deterministic and repeatable across restarts.
func DBID(s string) uuid.UUID {
	if parsed, err := uuid.Parse(s); err == nil {
		return parsed
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(s))
}
