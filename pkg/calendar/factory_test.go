package calendar

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

// failingProvider rejects every configuration
type failingProvider struct {
	*MockProvider
	loggerSet bool
}

func (f *failingProvider) SetLogger(logger *slog.Logger) { f.loggerSet = true }

func (f *failingProvider) Initialize(ctx context.Context, cfg ProviderConfig) error {
	return errors.New("missing url")
}

func TestNewDefaultProviderFactory(t *testing.T) {
	factory := NewDefaultProviderFactory()
	if factory == nil {
		t.Fatal("NewDefaultProviderFactory returned nil")
	}
	if len(factory.SupportedTypes()) != 0 {
		t.Errorf("Expected 0 supported types initially, got %d", len(factory.SupportedTypes()))
	}
}

func TestDefaultProviderFactory_CreateProvider(t *testing.T) {
	factory := NewDefaultProviderFactory()

	if _, err := factory.CreateProvider("nonexistent"); err == nil {
		t.Error("Expected error for unregistered provider")
	}

	factory.RegisterProvider("test", func() Provider {
		return NewMockProvider("Test Provider", "test")
	})

	provider, err := factory.CreateProvider("test")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if provider.Name() != "Test Provider" {
		t.Errorf("Expected name 'Test Provider', got %s", provider.Name())
	}
	if provider.Type() != "test" {
		t.Errorf("Expected type 'test', got %s", provider.Type())
	}

	other, _ := factory.CreateProvider("test")
	if provider == other {
		t.Error("Providers should be different instances")
	}
}

func TestDefaultProviderFactory_SupportedTypesSorted(t *testing.T) {
	factory := NewDefaultProviderFactory()
	factory.RegisterProvider("ical", func() Provider { return NewMockProvider("ical", "ical") })
	factory.RegisterProvider("caldav", func() Provider { return NewMockProvider("caldav", "caldav") })
	factory.RegisterProvider("google", func() Provider { return NewMockProvider("google", "google") })

	types := factory.SupportedTypes()
	expected := []string{"caldav", "google", "ical"}
	if len(types) != len(expected) {
		t.Fatalf("Expected %d supported types, got %d", len(expected), len(types))
	}
	for i := range expected {
		if types[i] != expected[i] {
			t.Errorf("Expected type %d to be %s, got %s", i, expected[i], types[i])
		}
	}
}

func TestDefaultProviderFactory_RegisterProvider_Overwrite(t *testing.T) {
	factory := NewDefaultProviderFactory()

	factory.RegisterProvider("test", func() Provider { return NewMockProvider("Original", "test") })
	factory.RegisterProvider("test", func() Provider { return NewMockProvider("Overwritten", "test") })

	if types := factory.SupportedTypes(); len(types) != 1 {
		t.Errorf("Expected 1 supported type, got %d", len(types))
	}

	provider, err := factory.CreateProvider("test")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if provider.Name() != "Overwritten" {
		t.Errorf("Expected name 'Overwritten', got %s", provider.Name())
	}
}

func TestDefaultProviderFactory_NewInitializedProvider(t *testing.T) {
	factory := NewDefaultProviderFactory()
	failing := &failingProvider{MockProvider: NewMockProvider("broken", "broken")}
	factory.RegisterProvider("broken", func() Provider { return failing })
	factory.RegisterProvider("test", func() Provider { return NewMockProvider("ok", "test") })

	if _, err := factory.NewInitializedProvider(context.Background(), "broken", ProviderConfig{}, nil); err == nil {
		t.Error("Expected initialization error")
	}
	if !failing.loggerSet {
		t.Error("Expected logger to be set before initialization")
	}

	provider, err := factory.NewInitializedProvider(context.Background(), "test", ProviderConfig{URL: "x"}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if provider.Name() != "ok" {
		t.Errorf("Expected name 'ok', got %s", provider.Name())
	}

	if _, err := factory.NewInitializedProvider(context.Background(), "missing", ProviderConfig{}, nil); err == nil {
		t.Error("Expected error for unknown type")
	}
}
