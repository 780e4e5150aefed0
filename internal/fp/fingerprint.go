package fp

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path/filepath"
	"strings"
)

// NormalizeSource trims whitespace and lowercases the scheme and host of a
// URL. Path and query are kept verbatim since model hubs are case sensitive.
func NormalizeSource(s string) string {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}

// NormalizeTargetPath trims whitespace and cleans the path using filepath.Clean.
func NormalizeTargetPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	return filepath.Clean(p)
}

// Fingerprint computes a stable hex-encoded SHA-256 over the normalized
// source URL and destination path. It identifies a manifest entry across runs.
func Fingerprint(source, targetPath string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeSource(source)))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeTargetPath(targetPath)))
	return hex.EncodeToString(h.Sum(nil))
}
