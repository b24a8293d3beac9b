// Package domain contains core business types and interfaces.
//
// This file defines the Artifact type: one generated QR payload. Each artifact
// row doubles as the usage ledger entry counted against the owner's quota.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Render defaults and bounds.
const (
	DefaultQRSize   = 256
	MinQRSize       = 64
	MaxQRSize       = 2048
	MaxPayloadBytes = 2048
	DefaultFormat   = "png"
	DefaultFGColor  = "#000000"
	DefaultBGColor  = "#FFFFFF"
)

// Artifact is a generated QR code record.
type Artifact struct {
	ID        string
	AccountID uuid.UUID
	Payload   string
	Scans     int64
	Options   RenderOptions
	ImageKey  string // Object storage key; empty if the image was not stored
	CreatedAt time.Time
}

// IsURL reports whether scanning the artifact should redirect to its payload.
func (a *Artifact) IsURL() bool {
	p := strings.ToLower(a.Payload)
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// RenderOptions controls how a payload is rendered into an image.
// It is persisted alongside the artifact as JSON.
type RenderOptions struct {
	Size    int    `json:"size"`
	Format  string `json:"format"`
	Color   string `json:"color,omitempty"`
	BgColor string `json:"bg_color,omitempty"`
	HasLogo bool   `json:"has_logo,omitempty"`

	// Logo is the decoded logo image; it is never persisted.
	Logo []byte `json:"-"`
}

// GenerateParams contains the validated parameters for artifact generation.
type GenerateParams struct {
	Payload string
	Options RenderOptions
}

// GenerateResult is returned by a successful generation request.
type GenerateResult struct {
	Artifact  *Artifact
	Image     []byte
	ImageURL  string
	Remaining int
}

// Analytics summarises scan activity for an artifact.
type Analytics struct {
	ID             string
	TotalScans     int64
	CreatedAt      time.Time
	AvgScansPerDay float64
}

// ComputeAnalytics derives analytics for an artifact as of now. Artifacts
// younger than a day are averaged over one day.
func ComputeAnalytics(a *Artifact, now time.Time) *Analytics {
	days := now.Sub(a.CreatedAt).Hours() / 24
	if days < 1 {
		days = 1
	}
	return &Analytics{
		ID:             a.ID,
		TotalScans:     a.Scans,
		CreatedAt:      a.CreatedAt,
		AvgScansPerDay: float64(a.Scans) / days,
	}
}
