// Package audit records which user changed what through the HTTP API.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one audited action.
type Entry struct {
	ID            string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	SiteID        string
	Metadata      map[string]string
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// FromRequest starts an entry for the caller of r.
func FromRequest(r *http.Request, actor, role, action string) Entry {
	entry := Entry{Actor: actor, Role: role, Action: action}
	if r != nil {
		entry.IP = ClientIP(r)
		entry.UserAgent = r.UserAgent()
	}
	return entry
}

// On names the resource the action touched.
func (e Entry) On(resourceType, resourceID, siteID string) Entry {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	e.SiteID = siteID
	return e
}

// With adds one metadata key.
func (e Entry) With(key, value string) Entry {
	meta := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	meta[key] = value
	e.Metadata = meta
	return e
}

// NewID returns a time-ordered entry id.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// DigestJSON returns the hex SHA-256 of data, or "" when empty.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ClientIP returns the first X-Forwarded-For hop, or the remote host.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
