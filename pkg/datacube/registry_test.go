package datacube

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisahligono/semantique/pkg/core"
)

type stubDriver struct{ name string }

func (s *stubDriver) Name() string { return s.name }
func (s *stubDriver) Close() error { return nil }
func (s *stubDriver) Fetch(context.Context, *core.LayerLocator) (*core.Array, error) {
	return core.Scalar(1), nil
}

func TestUnknownDriverError_Error(t *testing.T) {
	err := &UnknownDriverError{Type: "zarr", Available: []string{"memory", "sqlite"}}

	msg := err.Error()
	assert.Contains(t, msg, "zarr")
	assert.Contains(t, msg, "memory")
	assert.Contains(t, msg, "semantique.yaml")
}

func TestRegisterAndOpen(t *testing.T) {
	Register("stub_registry_test", func(_ context.Context, cfg Config, logger *slog.Logger) (Driver, error) {
		require.NotNil(t, logger)
		return &stubDriver{name: cfg.Type}, nil
	})

	assert.True(t, IsRegistered("stub_registry_test"))
	assert.Contains(t, List(), "stub_registry_test")

	d, err := Open(context.Background(), Config{Type: "stub_registry_test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "stub_registry_test", d.Name())
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), Config{}, nil)
	require.Error(t, err)
	assert.Equal(t, "data cube type not specified", err.Error())

	_, err = Open(context.Background(), Config{Type: "does_not_exist"}, nil)
	var unknown *UnknownDriverError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "does_not_exist", unknown.Type)

	Register("failing_registry_test", func(context.Context, Config, *slog.Logger) (Driver, error) {
		return nil, errors.New("boom")
	})
	_, err = Open(context.Background(), Config{Type: "failing_registry_test"}, nil)
	assert.ErrorContains(t, err, "boom")
}
