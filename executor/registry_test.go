package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/caffeineduck/runit/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := executor.NewRegistry(langA, langB)

	lang, ok := r.ForFile("/srv/app/MAIN.A")
	require.True(t, ok)
	assert.Equal(t, "alpha", lang.Name())

	_, ok = r.ForFile("notes.txt")
	assert.False(t, ok)

	_, ok = r.Get("beta")
	assert.True(t, ok)

	assert.Equal(t, []string{"alpha", "beta"}, r.List())
	assert.Equal(t, []string{".a", ".b"}, r.Extensions())
}

func TestRegistryOpen(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "app.a")
	writeFile(t, dir, "lib.b")
	backend := newStubBackend()
	backend.loader["app.a"] = `["index"]`
	backend.loader["lib.b"] = `["helper"]`
	r := executor.NewRegistry(langA, langB)
	ctx := context.Background()

	d, err := r.Open(ctx, "alpha", dir, "app.a", options(t, backend)...)
	require.NoError(t, err)
	assert.IsType(t, &executor.Module{}, d)
	assert.Equal(t, []string{"index"}, d.Functions().Names())

	d, err = r.Open(ctx, "", dir, "app.a", options(t, backend)...)
	require.NoError(t, err)
	assert.IsType(t, &executor.Module{}, d)

	d, err = r.Open(ctx, executor.LanguageMulti, dir, "", options(t, backend)...)
	require.NoError(t, err)
	assert.IsType(t, &executor.Multi{}, d)
	assert.Equal(t, []string{"helper", "index"}, d.Functions().Names())
}

func TestRegistryOpenErrors(t *testing.T) {
	dir := t.TempDir()
	r := executor.NewRegistry(langA, langB)
	ctx := context.Background()

	_, err := r.Open(ctx, "alpha", dir, "app.txt", options(t, newStubBackend())...)
	assert.True(t, errors.Is(err, executor.ErrUnknownLanguage))

	_, err = r.Open(ctx, "gamma", dir, "app.a", options(t, newStubBackend())...)
	assert.True(t, errors.Is(err, executor.ErrUnknownLanguage))

	_, err = r.Open(ctx, "beta", dir, "app.a", options(t, newStubBackend())...)
	assert.True(t, errors.Is(err, executor.ErrUnknownLanguage))
}
