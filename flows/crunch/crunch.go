// Package crunch provides the "crunch" flow type: it awaits a seeded series,
// aggregates it in a single borrowed scope, and writes the result.
package crunch

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowgate-labs/flowgate/internal/flowreg"
	"github.com/flowgate-labs/flowgate/internal/paramutil"
	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/state"
)

func init() {
	flowreg.Register("crunch", New)
}

// New builds a crunch flow body from scenario params.
//
// Params:
//   - input (string, required): series prefix to aggregate. The flow awaits
//     '<input>.done' before reading.
//   - output (string, required): key the sum is written to.
func New(params map[string]interface{}) (flow.Body, error) {
	if err := paramutil.CheckAllowed(params, []string{"input", "output"}); err != nil {
		return nil, err
	}
	input, err := paramutil.GetRequiredString(params, "input")
	if err != nil {
		return nil, err
	}
	output, err := paramutil.GetRequiredString(params, "output")
	if err != nil {
		return nil, err
	}
	if input == output {
		return nil, gateerrors.NewValidationError("parameters 'input' and 'output' cannot be the same key", nil)
	}

	return func(ctx context.Context, fc flow.Context) error {
		// One probe per serviced update cycle until the producer marks the
		// series done.
		_, err := fc.Await(ctx, func(st state.StateReader) (interface{}, bool) {
			return st.Get(input + ".done")
		})
		if err != nil {
			return err
		}

		return fc.With(ctx, func(st state.Store) error {
			sum := 0
			seen := 0
			prefix := input + "."
			for key, value := range st.GetAll() {
				if !strings.HasPrefix(key, prefix) || key == input+".done" {
					continue
				}
				n, ok := asInt(value)
				if !ok {
					return fmt.Errorf("series value at '%s' is not a number (%T)", key, value)
				}
				sum += n
				seen++
			}
			fc.Logger().Debugf("Aggregated %d values from '%s' into '%s'", seen, input, output)
			return st.Set(output, sum)
		})
	}, nil
}

func asInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
		return 0, false
	default:
		return 0, false
	}
}
