package mappingcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-zx/xuwei-data/internal/model"
)

func mapping(col string) model.MappingConfig {
	return model.MappingConfig{"Sheet1": {Fields: map[string]string{model.FieldName: col}}}
}

func TestFile_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := New(filepath.Join(t.TempDir(), "nested", DefaultFilename))

	_, ok, err := c.LoadMapping(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SaveMapping(ctx, "fp", mapping("姓名")))
	got, ok, err := c.LoadMapping(ctx, "fp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, mapping("姓名"), got)

	_, err = os.Stat(c.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed away")

	require.NoError(t, c.DeleteMapping(ctx, "fp"))
	_, ok, err = c.LoadMapping(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFile_KeepsNewest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := New(filepath.Join(t.TempDir(), DefaultFilename))

	for i := 0; i < model.MaxCachedMappings+2; i++ {
		require.NoError(t, c.SaveMapping(ctx, fmt.Sprintf("f%02d", i), mapping("姓名")))
	}
	require.NoError(t, c.SaveMapping(ctx, "f02", mapping("名字")))

	keys, err := c.Fingerprints()
	require.NoError(t, err)
	require.Len(t, keys, model.MaxCachedMappings)
	assert.Equal(t, "f02", keys[0])
	assert.NotContains(t, keys, "f00")
	assert.NotContains(t, keys, "f01")

	require.NoError(t, c.ClearMappings(ctx))
	keys, err = c.Fingerprints()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFile_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultFilename)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, _, err := New(path).LoadMapping(context.Background(), "fp")
	assert.Error(t, err)
}
