package gesture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerPersister(t *testing.T) {
	dir := t.TempDir()
	p, err := OpenBadgerPersister(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Save(ctx, map[string]Record{
		"g1": {ID: "g1", Name: "Peace", Action: "screenshot", Samples: 80},
		"g2": {ID: "g2", Name: "Fist", Action: "mute"},
	}))
	require.NoError(t, p.Save(ctx, map[string]Record{
		"g1": {ID: "g1", Name: "Peace", Action: "screenshot", Samples: 90},
	}))
	require.NoError(t, p.Close())

	reopened, err := OpenBadgerPersister(dir)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 90, loaded["g1"].Samples)
	assert.NotContains(t, loaded, "g2")
}

func TestBadgerPersisterBacksStore(t *testing.T) {
	p, err := OpenBadgerPersister(t.TempDir())
	require.NoError(t, err)
	defer p.Close()

	s, err := NewStore(context.Background(), p, WithLogger(discardLogger()))
	require.NoError(t, err)
	r, err := s.Create(context.Background(), Draft{Name: "Peace", Action: "screenshot"})
	require.NoError(t, err)

	loaded, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r, loaded[r.ID])
}
