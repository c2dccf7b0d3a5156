// Package tokenstore persists the credential pair for one client: the Go
// counterpart of the two localStorage keys the browser front end used.
//
// Every backend is scoped to a single client ID. Failures are wrapped with
// domain.ErrStorageUnavailable; callers degrade them to "no session".
package tokenstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/newsdesk/console/internal/domain"
)

var tracer = otel.Tracer("tokenstore")

// Store persists and retrieves one client's credential pair.
type Store interface {
	// Save persists both tokens, overwriting any existing pair.
	Save(ctx context.Context, pair domain.CredentialPair) error
	// Clear removes both tokens. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
	// AccessToken returns the stored access token, or "" when none is stored.
	AccessToken(ctx context.Context) (string, error)
}

// Factory returns the Store for a client ID.
type Factory func(clientID string) Store

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorageUnavailable, err)
}
