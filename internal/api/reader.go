package api

import (
	"context"

	"github.com/roach88/sibr/internal/model"
	"github.com/roach88/sibr/internal/store"
)

// Reader is the read side of the store the API depends on.
type Reader interface {
	QueryPage(ctx context.Context, q store.Query) (store.Page, error)
	Latest(ctx context.Context, kind model.EntityKind, entityID string) (model.UniqueView, error)
	Provenance(ctx context.Context, kind model.EntityKind, entityID string, hash model.Hash) ([]model.EntityUpdate, error)
	GetObject(ctx context.Context, hash model.Hash) (model.Object, error)
	Stats(ctx context.Context) (store.Stats, error)
}
