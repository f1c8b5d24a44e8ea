package factory

import (
	"errors"
	"testing"

	"spintraffic/internal/config"
	"spintraffic/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedWriter string

func (w namedWriter) Write(*model.Window) error { return nil }
func (w namedWriter) Name() string              { return string(w) }

func withRegistry(t *testing.T) {
	t.Helper()
	mu.Lock()
	saved := registry
	registry = make(map[string]WriterFactory)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		registry = saved
		mu.Unlock()
	})
}

func TestCreate(t *testing.T) {
	withRegistry(t)

	RegisterWriter("b-enabled", func(cfg *config.Config) (model.Writer, error) {
		return namedWriter("b-enabled"), nil
	})
	RegisterWriter("a-enabled", func(cfg *config.Config) (model.Writer, error) {
		return namedWriter("a-enabled"), nil
	})
	RegisterWriter("disabled", func(cfg *config.Config) (model.Writer, error) {
		return nil, nil
	})
	RegisterWriter("broken", func(cfg *config.Config) (model.Writer, error) {
		return nil, errors.New("connection refused")
	})

	writers := Create(config.Default())
	require.Len(t, writers, 2)
	assert.Equal(t, "a-enabled", writers[0].Name())
	assert.Equal(t, "b-enabled", writers[1].Name())
	assert.Equal(t, []string{"a-enabled", "b-enabled", "broken", "disabled"}, Registered())
}

func TestRegisterWriter_Duplicate(t *testing.T) {
	withRegistry(t)

	factory := func(cfg *config.Config) (model.Writer, error) { return nil, nil }
	RegisterWriter("csv", factory)
	assert.Panics(t, func() { RegisterWriter("csv", factory) })
}
