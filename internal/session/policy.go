package session

import "github.com/1ureka/sendfile/internal/protocol"

// Policy decides whether a server accepts the announced file list.
// It is consulted once per session.
type Policy func(files []protocol.FileMeta) bool

// AcceptAll is the default policy.
func AcceptAll([]protocol.FileMeta) bool { return true }

// RejectAll declines every session.
func RejectAll([]protocol.FileMeta) bool { return false }

// MaxFiles accepts lists of at most n files.
func MaxFiles(n int) Policy {
	return func(files []protocol.FileMeta) bool {
		return len(files) <= n
	}
}

// MaxTotalBytes accepts lists whose declared sizes sum to at most n.
func MaxTotalBytes(n uint64) Policy {
	return func(files []protocol.FileMeta) bool {
		var total uint64
		for _, f := range files {
			if f.Size > n-total {
				return false
			}
			total += f.Size
		}
		return true
	}
}

// All accepts only when every policy accepts. Nil policies are skipped.
func All(policies ...Policy) Policy {
	return func(files []protocol.FileMeta) bool {
		for _, p := range policies {
			if p != nil && !p(files) {
				return false
			}
		}
		return true
	}
}
