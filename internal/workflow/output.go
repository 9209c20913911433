package workflow

import (
	"context"
	"strings"

	"github.com/erazemk/oddaja/internal/model"
)

// Discard is an Output that hands nothing anywhere. CopyMedia summarizes
// the photo URLs.
type Discard struct{}

// CopyText implements Output.
func (Discard) CopyText(context.Context, model.Step, string) error { return nil }

// CopyMedia implements Output.
func (Discard) CopyMedia(_ context.Context, item model.WorkItem) (string, error) {
	return strings.Join(item.Photos, "\n"), nil
}
