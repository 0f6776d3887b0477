// Package util provides logging, connection ids and process-wide statistics.
package util

import (
	"hash/fnv"
	"net"
)

// ConnID computes a 4-byte id from a connection's local and remote
// addresses. It only tags log lines and does not need to be reversible.
func ConnID(conn net.Conn) uint32 {
	return AddrID(conn.LocalAddr(), conn.RemoteAddr())
}

// AddrID hashes a pair of addresses; nil addresses hash as empty strings.
func AddrID(local, remote net.Addr) uint32 {
	var l, r string
	if local != nil {
		l = local.String()
	}
	if remote != nil {
		r = remote.String()
	}
	return StringID(l, r)
}

// StringID hashes arbitrary parts, for streams without network addresses.
func StringID(parts ...string) uint32 {
	h := fnv.New32a()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return h.Sum32()
}
