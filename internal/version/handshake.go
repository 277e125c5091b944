package version

import (
	"context"
	"fmt"

	"github.com/gridcompute/gridcompute/internal/core/griderrors"
	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
)

// Handshake checks this client version against the grid's version gate.
//
// REFUSED is fatal and returned as a VERSION_REFUSED error. WARNING comes
// back as a record the caller surfaces to the user. ALLOWED and an
// uncontrolled grid (no versions collection, or no record for this version)
// are silent.
func Handshake(ctx context.Context, registry secondary.CaseRegistry) (models.VersionRecord, error) {
	rec, err := registry.QueryVersion(ctx, Current)
	if err != nil {
		return models.VersionRecord{}, err
	}
	if rec.Status == models.VersionRefused {
		msg := rec.Message
		if msg == "" {
			msg = "this version is not allowed on the grid"
		}
		return rec, griderrors.New(griderrors.VersionRefused,
			fmt.Errorf("version %s refused: %s", Current, msg))
	}
	return rec, nil
}
