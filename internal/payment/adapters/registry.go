package adapters

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/lms/internal/payment/domain"
)

// Registry maps a configured gateway name to the factory that builds it.
type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	r := &Registry{factories: make(map[string]domain.AdapterFactory, len(factories))}
	for _, f := range factories {
		if f == nil {
			continue
		}
		if name := providerKey(f.Provider()); name != "" {
			r.factories[name] = f
		}
	}
	return r
}

// Providers lists the registered gateway names in sorted order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) NewAdapter(provider string, cfg domain.AdapterConfig) (domain.Gateway, error) {
	var factory domain.AdapterFactory
	if r != nil {
		factory = r.factories[providerKey(provider)]
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: %q (registered: %s)",
			domain.ErrProviderNotFound, provider, strings.Join(r.Providers(), ", "))
	}
	return factory.NewAdapter(cfg)
}

func providerKey(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// Settings reads typed values out of an adapter config map.
type Settings map[string]any

// String returns the trimmed value for key, or "" when absent or not a string.
func (s Settings) String(key string) string {
	v, _ := s[key].(string)
	return strings.TrimSpace(v)
}

// Duration returns the value for key when it is a positive duration.
func (s Settings) Duration(key string, fallback time.Duration) time.Duration {
	if v, ok := s[key].(time.Duration); ok && v > 0 {
		return v
	}
	return fallback
}

// Require fails with ErrInvalidConfig naming the first empty key.
func (s Settings) Require(keys ...string) error {
	for _, key := range keys {
		if s.String(key) == "" {
			return fmt.Errorf("%w: %s is required", domain.ErrInvalidConfig, key)
		}
	}
	return nil
}
