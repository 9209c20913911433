package store

import (
	"time"

	"github.com/erazemk/oddaja/internal/model"
)

// document is a record as held by the document stores (Mongo, Firestore and
// Redis hashes). Money is kept as decimal strings and photos as the raw
// stored text, so every backend hands the normalizer the same input.
type document struct {
	ID                   string     `bson:"_id" firestore:"-"`
	Title                string     `bson:"title,omitempty" firestore:"title,omitempty"`
	Name                 string     `bson:"name,omitempty" firestore:"name,omitempty"`
	Description          string     `bson:"description,omitempty" firestore:"description,omitempty"`
	Price                string     `bson:"price,omitempty" firestore:"price,omitempty"`
	TotalPrice           string     `bson:"total_price,omitempty" firestore:"total_price,omitempty"`
	DiscountPercent      string     `bson:"discount_percent,omitempty" firestore:"discount_percent,omitempty"`
	Photos               string     `bson:"photos,omitempty" firestore:"photos,omitempty"`
	ListingCount         int        `bson:"listing_count,omitempty" firestore:"listing_count,omitempty"`
	Status               string     `bson:"status" firestore:"status"`
	Notes                string     `bson:"notes,omitempty" firestore:"notes,omitempty"`
	DestinationReference *string    `bson:"destination_reference,omitempty" firestore:"destination_reference,omitempty"`
	PublishedAt          *time.Time `bson:"published_at,omitempty" firestore:"published_at,omitempty"`
	CreatedAt            time.Time  `bson:"created_at" firestore:"created_at"`
}

func toDocument(rec model.Record) document {
	d := document{
		ID:                   rec.ID,
		Status:               string(rec.Status),
		Notes:                rec.Notes,
		DestinationReference: rec.DestinationReference,
		PublishedAt:          rec.PublishedAt,
		CreatedAt:            rec.CreatedAt.UTC(),
	}
	if d.PublishedAt != nil {
		t := d.PublishedAt.UTC()
		d.PublishedAt = &t
	}
	switch {
	case rec.Listing != nil:
		d.Title = rec.Listing.Title
		d.Description = rec.Listing.Description
		d.Price = rec.Listing.Price.String()
		d.Photos = string(rec.Listing.Photos)
	case rec.Bundle != nil:
		d.Name = rec.Bundle.Name
		d.Description = rec.Bundle.Description
		d.TotalPrice = rec.Bundle.TotalPrice.String()
		d.DiscountPercent = rec.Bundle.DiscountPercent.String()
		d.Photos = string(rec.Bundle.Photos)
		d.ListingCount = rec.Bundle.ListingCount
	}
	return d
}

func (d document) record(kind model.Kind) model.Record {
	rec := model.Record{
		Kind:                 kind,
		ID:                   d.ID,
		Status:               model.Status(d.Status),
		Notes:                d.Notes,
		DestinationReference: d.DestinationReference,
		PublishedAt:          d.PublishedAt,
		CreatedAt:            d.CreatedAt,
	}
	var photos []byte
	if d.Photos != "" {
		photos = []byte(d.Photos)
	}
	if kind == model.KindBundle {
		rec.Bundle = &model.BundleFields{
			Name:            d.Name,
			Description:     d.Description,
			TotalPrice:      decimalOrZero(d.TotalPrice),
			DiscountPercent: decimalOrZero(d.DiscountPercent),
			Photos:          photos,
			ListingCount:    d.ListingCount,
		}
	} else {
		rec.Listing = &model.ListingFields{
			Title:       d.Title,
			Description: d.Description,
			Price:       decimalOrZero(d.Price),
			Photos:      photos,
		}
	}
	return rec
}
