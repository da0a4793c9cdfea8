package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// UploadRecord is the authoritative record of one accepted capture.
// Immutable once created: exactly one record exists per imageID, and
// ContentKey is derived once at ingestion and never regenerated.
type UploadRecord struct {
	ImageID     string    `json:"image_id"`
	AccountID   string    `json:"account_id"`
	ContentKey  string    `json:"content_key"`
	SizeBytes   int64     `json:"size_bytes"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Side        string    `json:"side,omitempty"`        // "R" or "L"
	Description string    `json:"description,omitempty"`
	ClientHash  string    `json:"client_hash,omitempty"` // uploader-supplied content fingerprint
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

var filenameSanitizer = regexp.MustCompile(`[^a-z0-9\s-]`)

// Filename derives a human-readable display filename from the
// record's metadata, e.g. "right-wound-infection-2026-08-30-a3f9e2.jpg".
func (u *UploadRecord) Filename() string {
	var parts []string

	switch u.Side {
	case "R":
		parts = append(parts, "right")
	case "L":
		parts = append(parts, "left")
	}

	if u.Description != "" {
		sanitized := strings.ToLower(u.Description)
		sanitized = filenameSanitizer.ReplaceAllString(sanitized, "")
		sanitized = strings.Join(strings.Fields(sanitized), "-")
		if len(sanitized) > 30 {
			sanitized = sanitized[:30]
		}
		if sanitized != "" {
			parts = append(parts, sanitized)
		}
	}

	date := u.CreatedAt.UTC().Format("2006-01-02")
	shortID := u.ImageID
	if len(shortID) > 6 {
		shortID = shortID[:6]
	}

	if len(parts) == 0 {
		return fmt.Sprintf("clinical-photo-%s-%s.jpg", date, shortID)
	}

	parts = append(parts, date, shortID)
	return strings.Join(parts, "-") + ".jpg"
}
