package adapters

import (
	"testing"
	"time"

	"github.com/smallbiznis/lms/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFactory struct{ name string }

func (f stubFactory) Provider() string { return f.name }

func (f stubFactory) NewAdapter(domain.AdapterConfig) (domain.Gateway, error) {
	return nil, nil
}

func TestRegistryNormalizesProviderNames(t *testing.T) {
	r := NewRegistry(stubFactory{name: " Stripe "}, stubFactory{name: "paypal"}, stubFactory{name: ""}, nil)

	assert.Equal(t, []string{"paypal", "stripe"}, r.Providers())

	_, err := r.NewAdapter("STRIPE", domain.AdapterConfig{})
	assert.NoError(t, err)

	_, err = r.NewAdapter("square", domain.AdapterConfig{})
	require.ErrorIs(t, err, domain.ErrProviderNotFound)
	assert.Contains(t, err.Error(), "paypal, stripe")
}

func TestNilRegistryHasNoProviders(t *testing.T) {
	var r *Registry

	assert.Empty(t, r.Providers())
	_, err := r.NewAdapter("stripe", domain.AdapterConfig{})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestSettings(t *testing.T) {
	s := Settings{
		"secret_key": "  sk_test  ",
		"blank":      "   ",
		"count":      3,
		"timeout":    5 * time.Second,
		"negative":   -time.Second,
	}

	assert.Equal(t, "sk_test", s.String("secret_key"))
	assert.Empty(t, s.String("count"))
	assert.Equal(t, 5*time.Second, s.Duration("timeout", time.Second))
	assert.Equal(t, time.Second, s.Duration("negative", time.Second))
	assert.Equal(t, time.Second, s.Duration("missing", time.Second))

	assert.NoError(t, s.Require("secret_key"))
	err := s.Require("secret_key", "blank")
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "blank is required")
}
