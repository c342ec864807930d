package middlewarex

import (
	"context"

	"mpesagw/internal/store"
)

type ctxKey string

const ctxAPIClient ctxKey = "api_client"

func WithAPIClient(ctx context.Context, c *store.APIClient) context.Context {
	return context.WithValue(ctx, ctxAPIClient, c)
}

func APIClient(ctx context.Context) (*store.APIClient, bool) {
	c, ok := ctx.Value(ctxAPIClient).(*store.APIClient)
	return c, ok
}
