package body

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	require.Len(t, c, 20)
	require.NoError(t, c.Validate())

	// Catalog order is the record key; the first two slots are pinned.
	assert.Equal(t, IDSun, c[0].ID)
	assert.Equal(t, IDMoon, c[1].ID)

	// Asteroids carry a fallback identifier in the numbered family.
	for _, b := range c {
		if b.SupportsFallback {
			assert.Greater(t, b.FallbackID, AsteroidOffset, "body %s", b.Name)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		catalog Catalog
		wantErr error
	}{
		{
			name:    "empty",
			catalog: Catalog{},
			wantErr: ErrEmptyCatalog,
		},
		{
			name: "zero max speed",
			catalog: Catalog{
				{ID: 1, Name: "bad", MaxSpeed: 0},
			},
			wantErr: ErrInvalidMaxSpeed,
		},
		{
			name: "negative max speed",
			catalog: Catalog{
				{ID: 1, Name: "bad", MaxSpeed: -1.5},
			},
			wantErr: ErrInvalidMaxSpeed,
		},
		{
			name: "duplicate id",
			catalog: Catalog{
				{ID: 7, Name: "a", MaxSpeed: 1},
				{ID: 7, Name: "b", MaxSpeed: 1},
			},
			wantErr: ErrDuplicateID,
		},
		{
			name: "valid",
			catalog: Catalog{
				{ID: 1, Name: "a", MaxSpeed: 1.0},
				{ID: 2, Name: "b", MaxSpeed: 13.5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.catalog.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHash(t *testing.T) {
	a := Default()
	b := Default()
	assert.Equal(t, a.Hash(), b.Hash(), "identical catalogs must hash equal")

	b[3].MaxSpeed += 0.1
	assert.NotEqual(t, a.Hash(), b.Hash(), "max-speed change alters quantization, must alter hash")

	c := Default()
	c[0], c[1] = c[1], c[0]
	assert.NotEqual(t, a.Hash(), c.Hash(), "order change must alter hash")
}
