package imaging

import (
	"context"
	"fmt"

	"github.com/erazemk/oddaja/internal/model"
)

// Output hands the media step to an Exporter. Text fields are left to the
// caller.
type Output struct {
	Exporter *Exporter
}

// CopyText does nothing; the copied text is returned to the client.
func (Output) CopyText(context.Context, model.Step, string) error { return nil }

// CopyMedia exports the item's photos and returns the export summary.
func (o Output) CopyMedia(ctx context.Context, item model.WorkItem) (string, error) {
	res, err := o.Exporter.Export(ctx, item)
	if err != nil {
		return "", fmt.Errorf("exporting media: %w", err)
	}
	return res.Summary(), nil
}
