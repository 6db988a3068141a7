// Package seed provides the "seed" flow type: it writes a numbered series of
// values under a key prefix, one handoff cycle per write, then marks the
// series done. Downstream flows typically Await the done marker.
package seed

import (
	"context"
	"fmt"

	"github.com/flowgate-labs/flowgate/internal/flowreg"
	"github.com/flowgate-labs/flowgate/internal/paramutil"
	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
)

const defaultCount = 10

func init() {
	flowreg.Register("seed", New)
}

// New builds a seed flow body from scenario params.
//
// Params:
//   - key (string, required): prefix the series is written under.
//   - count (int, optional): number of values to write, default 10.
func New(params map[string]interface{}) (flow.Body, error) {
	if err := paramutil.CheckAllowed(params, []string{"key", "count"}); err != nil {
		return nil, err
	}
	key, err := paramutil.GetRequiredString(params, "key")
	if err != nil {
		return nil, err
	}
	count, ok, err := paramutil.GetOptionalInt(params, "count")
	if err != nil {
		return nil, err
	}
	if !ok {
		count = defaultCount
	}
	if count <= 0 {
		return nil, gateerrors.NewValidationError(fmt.Sprintf("parameter 'count' must be positive, got %d", count), nil)
	}

	return func(ctx context.Context, fc flow.Context) error {
		for i := 0; i < count; i++ {
			if err := fc.Set(ctx, fmt.Sprintf("%s.%d", key, i), i); err != nil {
				return err
			}
		}
		fc.Logger().Debugf("Seeded %d values under '%s'", count, key)
		return fc.Set(ctx, key+".done", count)
	}, nil
}
