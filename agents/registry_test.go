package agents

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmatik/backend/core"
)

func validAgent(id string) core.Agent {
	return core.Agent{
		ID:    id,
		Name:  id,
		Model: DefaultModel,
		Capabilities: core.Capabilities{
			Streaming: true,
			Languages: []string{"en"},
		},
		Pricing: core.Pricing{Unit: "per_1M_tokens", Rate: 0.35},
	}
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		catalog []core.Agent
	}{
		{"empty catalog", nil},
		{"empty id", []core.Agent{validAgent("")}},
		{"duplicate id", []core.Agent{validAgent("a"), validAgent("a")}},
		{"missing model", []core.Agent{{ID: "a", Capabilities: core.Capabilities{Languages: []string{"en"}}}}},
		{"no languages", []core.Agent{{ID: "a", Model: DefaultModel}}},
		{"negative rate", func() []core.Agent {
			a := validAgent("a")
			a.Pricing.Rate = -1
			return []core.Agent{a}
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.catalog)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestRegistryListPreservesOrder(t *testing.T) {
	r, err := NewRegistry([]core.Agent{validAgent("b"), validAgent("a"), validAgent("c")})
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, "c", list[2].ID)
}

func TestRegistryGet(t *testing.T) {
	r, err := NewRegistry([]core.Agent{validAgent("a")})
	require.NoError(t, err)

	agent, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", agent.ID)

	_, err = r.Get("missing")
	assert.True(t, errors.Is(err, core.ErrNotFound), "got %v", err)
	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("missing"))
}

func TestBuiltinCatalogIsValid(t *testing.T) {
	r, err := NewRegistry(Builtin())
	require.NoError(t, err)
	assert.Equal(t, 8, r.Len())
	assert.True(t, r.Has(DefaultAgentID))

	ceo, err := r.Get("flowi-ceo")
	require.NoError(t, err)
	assert.True(t, ceo.Capabilities.DeepThinking)
	assert.Equal(t, DefaultModel, ceo.Model)
}
