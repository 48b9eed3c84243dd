package watermark

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	viewerTokenRe = regexp.MustCompile(`^[A-Z2-7]{4}-[A-Z2-7]{4}-[A-Z2-7]{4}-[A-Z2-7]{4}$`)
	anonTokenRe   = regexp.MustCompile(`^ANON-[A-Z2-7]{4}-[A-Z2-7]{4}-[A-Z2-7]{4}$`)
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer("unit-test-secret", Options{})
	require.NoError(t, err)
	return issuer
}

func TestIssuer_Issue(t *testing.T) {
	issuer := newTestIssuer(t)

	t.Run("deterministic", func(t *testing.T) {
		a := issuer.Issue(Viewer{ID: 1}, 10, "salt-1")
		b := issuer.Issue(Viewer{ID: 1}, 10, "salt-1")
		assert.Equal(t, a, b)
	})

	t.Run("differs per viewer, content and salt", func(t *testing.T) {
		base := issuer.Issue(Viewer{ID: 1}, 10, "salt-1")
		assert.NotEqual(t, base.Token, issuer.Issue(Viewer{ID: 2}, 10, "salt-1").Token)
		assert.NotEqual(t, base.Token, issuer.Issue(Viewer{ID: 1}, 11, "salt-1").Token)
		assert.NotEqual(t, base.Token, issuer.Issue(Viewer{ID: 1}, 10, "salt-2").Token)
	})

	t.Run("different secret different token", func(t *testing.T) {
		other, err := NewIssuer("another-secret", Options{})
		require.NoError(t, err)
		assert.NotEqual(t,
			issuer.Issue(Viewer{ID: 1}, 10, "s").Token,
			other.Issue(Viewer{ID: 1}, 10, "s").Token)
	})

	t.Run("overlay fields", func(t *testing.T) {
		spec := issuer.Issue(Viewer{ID: 1}, 10, "salt")

		assert.Regexp(t, viewerTokenRe, spec.Token)
		assert.Equal(t, "AEGIS-ID: "+spec.Token, spec.Text)
		assert.Equal(t, "14px monospace", spec.Font)
		assert.Equal(t, "rgba(255,255,255,0.15)", spec.Color)
		assert.Equal(t, 0.15, spec.Opacity)
		assert.Equal(t, 150, spec.Pitch)
		assert.Equal(t, -45, spec.RotationDeg)
		assert.Equal(t, "tile", spec.Render)
	})

	t.Run("anonymous viewer", func(t *testing.T) {
		spec := issuer.Issue(Viewer{}, 10, "salt")

		assert.Regexp(t, anonTokenRe, spec.Token)
		assert.True(t, IsAnonymousToken(spec.Token))
		assert.Equal(t, spec.Token, issuer.Issue(Viewer{ID: -5}, 10, "salt").Token)
		assert.False(t, IsAnonymousToken(issuer.Issue(Viewer{ID: 1}, 10, "salt").Token))
	})

	t.Run("custom options", func(t *testing.T) {
		custom, err := NewIssuer("s", Options{Pitch: 200, FontSize: 18, Opacity: 0.3})
		require.NoError(t, err)

		spec := custom.Issue(Viewer{ID: 1}, 1, "x")
		assert.Equal(t, "18px monospace", spec.Font)
		assert.Equal(t, "rgba(255,255,255,0.3)", spec.Color)
		assert.Equal(t, 200, spec.Pitch)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := NewIssuer("", Options{})
		assert.ErrorIs(t, err, ErrEmptySecret)
	})
}

func TestIssuer_Verify(t *testing.T) {
	issuer := newTestIssuer(t)
	token := issuer.Token(Viewer{ID: 3}, 9, "salt")

	assert.True(t, issuer.Verify(token, Viewer{ID: 3}, 9, "salt"))
	assert.False(t, issuer.Verify(token, Viewer{ID: 4}, 9, "salt"))
	assert.False(t, issuer.Verify(token, Viewer{ID: 3}, 9, "other"))
}

func TestLayout(t *testing.T) {
	spec := OverlaySpec{Pitch: 150}

	t.Run("covers three times the surface", func(t *testing.T) {
		layout := Layout(spec, Surface{Width: 300, Height: 150})

		// x: -300..450 共 6 列，y: -150..150 共 3 行
		assert.Len(t, layout.Tiles, 18)
		assert.Equal(t, 150, layout.Pitch)
		assert.Equal(t, [2]int{-300, -150}, layout.Tiles[0])
		assert.Equal(t, [2]int{450, 150}, layout.Tiles[len(layout.Tiles)-1])
		for _, tile := range layout.Tiles {
			assert.GreaterOrEqual(t, tile[0], -300)
			assert.Less(t, tile[0], 600)
			assert.GreaterOrEqual(t, tile[1], -150)
			assert.Less(t, tile[1], 300)
		}
	})

	t.Run("recomputed on resize", func(t *testing.T) {
		small := Layout(spec, Surface{Width: 300, Height: 150})
		large := Layout(spec, Surface{Width: 1920, Height: 1080})
		assert.Greater(t, len(large.Tiles), len(small.Tiles))
		assert.Equal(t, Surface{Width: 1920, Height: 1080}, large.Surface)
	})

	t.Run("pitch floor", func(t *testing.T) {
		layout := Layout(OverlaySpec{Pitch: 1}, Surface{Width: 100, Height: 100})
		assert.Equal(t, MinPitch, layout.Pitch)
		assert.Len(t, layout.Tiles, 36)

		issuer, err := NewIssuer("s", Options{Pitch: 5})
		require.NoError(t, err)
		assert.Equal(t, MinPitch, issuer.Issue(Viewer{ID: 1}, 1, "salt").Pitch)
	})

	t.Run("tile count capped on huge surfaces", func(t *testing.T) {
		layout := Layout(spec, Surface{Width: MaxSurfaceSide, Height: MaxSurfaceSide})
		assert.LessOrEqual(t, len(layout.Tiles), MaxTiles)
		assert.Greater(t, layout.Pitch, spec.Pitch)
		assert.Equal(t, [2]int{-MaxSurfaceSide, -MaxSurfaceSide}, layout.Tiles[0])

		wide := Layout(OverlaySpec{Pitch: MinPitch}, Surface{Width: MaxSurfaceSide, Height: 1})
		assert.LessOrEqual(t, len(wide.Tiles), MaxTiles)
	})

	t.Run("empty surface", func(t *testing.T) {
		assert.Empty(t, Layout(spec, Surface{}).Tiles)
		assert.Empty(t, Layout(spec, Surface{Width: -1, Height: 10}).Tiles)
	})
}
