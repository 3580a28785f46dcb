package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type requestDataKey struct{}

// RequestData is the caller identity extracted from the bearer token.
// Tenancy checks always filter by OrgID.
type RequestData struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Role   string
}

func (rd *RequestData) IsAdmin() bool {
	return rd != nil && (rd.Role == "admin" || rd.Role == "owner")
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}
