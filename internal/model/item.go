package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// WorkItem is the unified, display-ready projection of a listing or bundle.
type WorkItem struct {
	ID                   string          `json:"id"`
	Kind                 Kind            `json:"kind"`
	Title                string          `json:"title"`
	Description          string          `json:"description,omitempty"`
	Price                decimal.Decimal `json:"price"`
	Photos               []string        `json:"photos"`
	Status               Status          `json:"status"`
	DestinationReference *string         `json:"destination_reference,omitempty"`
	AuditNotes           string          `json:"audit_notes,omitempty"`
	PublishedAt          *time.Time      `json:"published_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Reference returns the destination reference or "" when unset.
func (w WorkItem) Reference() string {
	if w.DestinationReference == nil {
		return ""
	}
	return *w.DestinationReference
}

// Record is a raw row as held by the item store. Exactly one of Listing or
// Bundle is set, matching Kind.
type Record struct {
	Kind                 Kind
	ID                   string
	Listing              *ListingFields
	Bundle               *BundleFields
	Status               Status
	Notes                string
	DestinationReference *string
	PublishedAt          *time.Time
	CreatedAt            time.Time
}

// ListingFields are the columns specific to a single listing.
type ListingFields struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Photos      json.RawMessage
}

// BundleFields are the columns specific to a bundle of listings.
type BundleFields struct {
	Name            string
	Description     string
	TotalPrice      decimal.Decimal
	DiscountPercent decimal.Decimal
	Photos          json.RawMessage
	ListingCount    int
}

// Patch is a partial update of the workflow-owned columns. Nil fields are
// left untouched.
type Patch struct {
	Status               *Status
	Notes                *string
	DestinationReference *string
	PublishedAt          *time.Time
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.Notes == nil && p.DestinationReference == nil && p.PublishedAt == nil
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
