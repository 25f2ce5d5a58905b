package sink

import (
	"context"

	"sensorstream/internal/models"
)

// Catalog is told about every file a sink creates.
type Catalog interface {
	RecordFile(ctx context.Context, rec models.FileRecord) error
}

// NopCatalog discards records.
type NopCatalog struct{}

func (NopCatalog) RecordFile(context.Context, models.FileRecord) error { return nil }

func catalogOrNop(c Catalog) Catalog {
	if c == nil {
		return NopCatalog{}
	}
	return c
}
