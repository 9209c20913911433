// Package normalize projects raw listing and bundle records onto the unified
// WorkItem shown in the queue.
package normalize

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/erazemk/oddaja/internal/model"
	"github.com/erazemk/oddaja/internal/photos"
)

var hundred = decimal.NewFromInt(100)

// Item converts a record of either kind into a WorkItem.
func Item(rec model.Record) (model.WorkItem, error) {
	item := model.WorkItem{
		ID:                   rec.ID,
		Kind:                 rec.Kind,
		Status:               rec.Status,
		DestinationReference: rec.DestinationReference,
		AuditNotes:           rec.Notes,
		PublishedAt:          rec.PublishedAt,
		CreatedAt:            rec.CreatedAt,
	}

	switch rec.Kind {
	case model.KindSingle:
		if rec.Listing == nil {
			return model.WorkItem{}, fmt.Errorf("listing %s: missing listing fields", rec.ID)
		}
		item.Title = rec.Listing.Title
		item.Description = rec.Listing.Description
		item.Price = rec.Listing.Price
		item.Photos = photos.Normalize(rec.Listing.Photos)
	case model.KindBundle:
		if rec.Bundle == nil {
			return model.WorkItem{}, fmt.Errorf("bundle %s: missing bundle fields", rec.ID)
		}
		item.Title = rec.Bundle.Name
		item.Description = rec.Bundle.Description
		item.Price = BundlePrice(rec.Bundle.TotalPrice, rec.Bundle.DiscountPercent)
		item.Photos = photos.Normalize(rec.Bundle.Photos)
	default:
		return model.WorkItem{}, fmt.Errorf("record %s: unknown kind %q", rec.ID, rec.Kind)
	}

	return item, nil
}

// BundlePrice applies a percentage discount to a bundle total, rounded to
// cents. Discounts outside 0..100 are clamped.
func BundlePrice(total, discountPercent decimal.Decimal) decimal.Decimal {
	if discountPercent.IsNegative() {
		discountPercent = decimal.Zero
	}
	if discountPercent.GreaterThan(hundred) {
		discountPercent = hundred
	}
	return total.Mul(hundred.Sub(discountPercent)).Div(hundred).Round(2)
}
