package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// DefaultProviderFactory is the default implementation of ProviderFactory
type DefaultProviderFactory struct {
	providers map[string]func() Provider
}

// NewDefaultProviderFactory creates a new default provider factory
func NewDefaultProviderFactory() *DefaultProviderFactory {
	return &DefaultProviderFactory{
		providers: make(map[string]func() Provider),
	}
}

// RegisterProvider registers a provider constructor function
func (f *DefaultProviderFactory) RegisterProvider(providerType string, constructor func() Provider) {
	f.providers[providerType] = constructor
}

// CreateProvider creates a new calendar provider instance based on the type
func (f *DefaultProviderFactory) CreateProvider(providerType string) (Provider, error) {
	constructor, exists := f.providers[providerType]
	if !exists {
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
	return constructor(), nil
}

// SupportedTypes returns the sorted list of supported provider types
func (f *DefaultProviderFactory) SupportedTypes() []string {
	types := make([]string, 0, len(f.providers))
	for providerType := range f.providers {
		types = append(types, providerType)
	}
	sort.Strings(types)
	return types
}

// NewInitializedProvider creates a provider of the given type, attaches the
// logger and initializes it from cfg.
func (f *DefaultProviderFactory) NewInitializedProvider(ctx context.Context, providerType string, cfg ProviderConfig, logger *slog.Logger) (Provider, error) {
	provider, err := f.CreateProvider(providerType)
	if err != nil {
		return nil, err
	}

	provider.SetLogger(logger)

	if err := provider.Initialize(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize %s provider: %w", providerType, err)
	}

	return provider, nil
}
