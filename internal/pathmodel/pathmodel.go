// Package pathmodel translates logical secret paths between Vault KV engine
// versions and between a source and destination prefix.
package pathmodel

import "strings"

// LogicalPath is an ordered sequence of path segments identifying a secret
// within a backend, independent of KV engine version.
type LogicalPath []string

// Parse splits a slash-separated path into a LogicalPath, dropping empty
// segments produced by leading, trailing, or doubled slashes.
func Parse(path string) LogicalPath {
	raw := strings.Split(path, "/")
	segments := make(LogicalPath, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// String renders the LogicalPath back to a slash-separated path.
func (p LogicalPath) String() string {
	return strings.Join(p, "/")
}

// IsEmpty reports whether the path has no segments.
func (p LogicalPath) IsEmpty() bool {
	return len(p) == 0
}

// HasPrefix reports whether p starts with prefix on whole-segment
// boundaries. An empty prefix matches everything.
func (p LogicalPath) HasPrefix(prefix LogicalPath) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, seg := range prefix {
		if p[i] != seg {
			return false
		}
	}
	return true
}

// TrimPrefix returns p with prefix removed, or p unchanged if it does not
// have that prefix.
func (p LogicalPath) TrimPrefix(prefix LogicalPath) LogicalPath {
	if !p.HasPrefix(prefix) {
		return p
	}
	return p[len(prefix):]
}

// Join appends a trailing path onto a base path, returning a new LogicalPath.
func (p LogicalPath) Join(rest LogicalPath) LogicalPath {
	out := make(LogicalPath, 0, len(p)+len(rest))
	out = append(out, p...)
	out = append(out, rest...)
	return out
}

// Child returns a new LogicalPath with segment appended.
func (p LogicalPath) Child(segment string) LogicalPath {
	out := make(LogicalPath, len(p)+1)
	copy(out, p)
	out[len(p)] = segment
	return out
}

// TranslatePrefix maps a logical path rooted at srcPrefix onto the
// equivalent path rooted at dstPrefix. It reports ok=false if path does not
// start with srcPrefix.
func TranslatePrefix(path, srcPrefix, dstPrefix LogicalPath) (LogicalPath, bool) {
	if !path.HasPrefix(srcPrefix) {
		return nil, false
	}
	suffix := path.TrimPrefix(srcPrefix)
	return dstPrefix.Join(suffix), true
}

// KVv1URL builds the Vault HTTP API URL path for a KV version 1 secret at
// the given backend mount and logical path.
func KVv1URL(backend string, path LogicalPath) string {
	return joinNonEmpty(backend, path.String())
}

// KVv2DataURL builds the URL path for reading/writing the current version of
// a KV version 2 secret.
func KVv2DataURL(backend string, path LogicalPath) string {
	return joinNonEmpty(backend, "data", path.String())
}

// KVv2MetadataURL builds the URL path used to list children of a KV version
// 2 secret tree.
func KVv2MetadataURL(backend string, path LogicalPath) string {
	return joinNonEmpty(backend, "metadata", path.String())
}

func joinNonEmpty(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}

// IsDirectory reports whether a list child entry denotes a directory, i.e.
// Vault's LIST convention of suffixing directory names with a trailing
// slash.
func IsDirectory(child string) bool {
	return strings.HasSuffix(child, "/")
}

// TrimDirectorySuffix removes the trailing slash Vault uses to mark a list
// entry as a directory.
func TrimDirectorySuffix(child string) string {
	return strings.TrimSuffix(child, "/")
}

// ParseAuditPath splits a Vault audit record's request.path into the
// backend mount and the raw path segments beneath it. The KV v1/v2 envelope
// infix, if any, is still present in the returned segments — callers must
// resolve it with StripKVInfix once they know which KV engine version the
// backend runs, since a bare backend name alone doesn't carry that
// information.
func ParseAuditPath(path string) (backend string, rest LogicalPath) {
	segments := Parse(path)
	if len(segments) == 0 {
		return "", LogicalPath{}
	}
	return segments[0], segments[1:]
}

// StripKVInfix adapts the raw segments following a backend mount to a
// version-independent LogicalPath, per the KV engine version the backend
// actually runs. KV v1 has no envelope: "data" occurring there is a literal
// path segment, so v1 segments pass through unchanged. KV v2 wraps the
// current value under a "data" infix; a "metadata"-prefixed path is a
// metadata-only operation, which does not change the secret's value, and is
// reported not-ok so callers treat it as irrelevant.
func StripKVInfix(rest LogicalPath, kvVersion int) (LogicalPath, bool) {
	if kvVersion == 1 {
		return rest, true
	}
	if len(rest) == 0 || rest[0] != "data" {
		return nil, false
	}
	return rest[1:], true
}
