package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersister_SaveLoadRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewPersister[dumpState]("dumper_7", NewLZ4Codec(NewGobCodec()))

	require.NoError(t, p.Save(dir, sampleState()))

	loaded, err := p.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, sampleState(), loaded)

	require.NoError(t, p.Remove(dir))

	_, err = p.Load(dir)
	assert.Error(t, err, "state gone after Remove")
}

func TestPersister_LoadMissing(t *testing.T) {
	t.Parallel()

	p := NewPersister[dumpState]("absent", NewJSONCodec())

	_, err := p.Load(t.TempDir())
	assert.Error(t, err)
}
