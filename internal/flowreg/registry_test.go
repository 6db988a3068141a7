package flowreg

import (
	"context"
	"testing"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/flowgate-labs/flowgate/pkg/flowgate/v1/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopFactory(params map[string]interface{}) (flow.Body, error) {
	return func(ctx context.Context, fc flow.Context) error { return nil }, nil
}

func TestRegisterAndGet(t *testing.T) {
	c := NewStaticCatalog()

	require.NoError(t, c.Register("demo", noopFactory))

	factory, err := c.Get("demo")
	require.NoError(t, err)
	assert.NotNil(t, factory)

	assert.Equal(t, []string{"demo"}, c.List())
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	c := NewStaticCatalog()

	assert.Error(t, c.Register("", noopFactory))
	assert.Error(t, c.Register("nil-factory", nil))

	require.NoError(t, c.Register("dup", noopFactory))
	err := c.Register("dup", noopFactory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestGetUnknownType(t *testing.T) {
	c := NewStaticCatalog()

	_, err := c.Get("ghost")
	require.Error(t, err)
	var notFound *gateerrors.FlowTypeNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.TypeName)
}
