// Package watch provides the "watch" flow type: it awaits a key (optionally
// a specific value) and records the observation, demonstrating long-lived
// condition polling synchronized to the host's update cycles.
package watch

import (
	"context"
	"fmt"

	"github.com/flowgate-labs/flowgate/internal/flowreg"
	"github.com/flowgate-labs/flowgate/internal/paramutil"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/state"
)

func init() {
	flowreg.Register("watch", New)
}

// New builds a watch flow body from scenario params.
//
// Params:
//   - key (string, required): store key to watch.
//   - equals (string, optional): when set, the condition only fires once the
//     key's value formats to this string.
func New(params map[string]interface{}) (flow.Body, error) {
	if err := paramutil.CheckAllowed(params, []string{"key", "equals"}); err != nil {
		return nil, err
	}
	key, err := paramutil.GetRequiredString(params, "key")
	if err != nil {
		return nil, err
	}
	equals, hasEquals, err := paramutil.GetOptionalString(params, "equals")
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, fc flow.Context) error {
		observed, err := fc.Await(ctx, func(st state.StateReader) (interface{}, bool) {
			value, ok := st.Get(key)
			if !ok {
				return nil, false
			}
			if hasEquals && fmt.Sprintf("%v", value) != equals {
				return nil, false
			}
			return value, true
		})
		if err != nil {
			return err
		}
		fc.Logger().Infof("Observed '%s' = %v", key, observed)
		return fc.Set(ctx, key+".observed", observed)
	}, nil
}
