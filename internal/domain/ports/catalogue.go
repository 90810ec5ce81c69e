package ports

import (
	"context"

	"mediastream/internal/domain"
)

type Catalogue interface {
	GetVideo(ctx context.Context, id domain.MediaID) (domain.MediaHandle, error)
	GetAudio(ctx context.Context, id domain.MediaID) (domain.MediaHandle, error)
	GetTranscodingSettings(ctx context.Context) (domain.TranscodingSettings, error)
	// VerifyBearer resolves a bearer token to the principal it belongs to.
	// Returns domain.ErrUnauthorised for unknown or expired tokens.
	VerifyBearer(ctx context.Context, token string) (domain.Principal, error)
}
