package selector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/media/formats"
	"github.com/ytget/mediamux/types"
)

const gib = int64(1) << 30

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

type pair struct {
	vid, aid     string
	vbr, abr     float64
	vsize, asize int64
	lang         string
}

func build(t *testing.T, p pair) formats.CombinedFormat {
	t.Helper()
	v := types.RawFormat{
		ID: p.vid, URL: "https://cdn.example.com/v", Ext: "mp4",
		ACodec: types.ParseCodec("none"), VCodec: types.ParseCodec("avc1.640028"),
		VBR: f64(p.vbr),
	}
	a := types.RawFormat{
		ID: p.aid, URL: "https://cdn.example.com/a", Ext: "m4a",
		ACodec: types.ParseCodec("mp4a.40.2"), VCodec: types.ParseCodec("none"),
		ABR: f64(p.abr), Language: p.lang,
	}
	if p.vsize > 0 {
		v.Filesize = i64(p.vsize)
	}
	if p.asize > 0 {
		a.Filesize = i64(p.asize)
	}
	got, dropped := formats.Build([]types.RawFormat{v, a}, nil, nil)
	require.Empty(t, dropped)
	require.Len(t, got, 1)
	return got[0]
}

func native(t *testing.T, id string, tbr float64) formats.CombinedFormat {
	t.Helper()
	r := types.RawFormat{
		ID: id, URL: "https://cdn.example.com/n", Ext: "mp4",
		ACodec: types.ParseCodec("mp4a.40.2"), VCodec: types.ParseCodec("avc1.64001F"),
		TBR: f64(tbr),
	}
	got, dropped := formats.Build([]types.RawFormat{r}, nil, nil)
	require.Empty(t, dropped)
	require.Len(t, got, 1)
	return got[0]
}

func TestSelect_OnlyCandidate(t *testing.T) {
	c := build(t, pair{vid: "137", aid: "140", vbr: 4000, abr: 128})
	got, err := Select([]formats.CombinedFormat{c}, Options{Budget: 10 * gib})
	require.NoError(t, err)
	assert.Equal(t, "137+140", got.FormatID())
}

func TestSelect_BudgetTooSmall(t *testing.T) {
	c := build(t, pair{vid: "137", aid: "140", vbr: 4000, abr: 128, vsize: 50 << 20, asize: 3 << 20})
	_, err := Select([]formats.CombinedFormat{c}, Options{Budget: 1})
	assert.ErrorIs(t, err, errs.ErrNoAcceptableFormat)
	assert.Equal(t, errs.KindNoFormat, errs.KindOf(err))
}

func TestSelect_ZeroBudget(t *testing.T) {
	sized := []formats.CombinedFormat{
		build(t, pair{vid: "137", aid: "140", vbr: 1, abr: 1, vsize: 10, asize: 1}),
		build(t, pair{vid: "136", aid: "140", vbr: 1, abr: 1, vsize: 5}),
	}
	_, err := Select(sized, Options{Budget: 0})
	assert.ErrorIs(t, err, errs.ErrNoAcceptableFormat)

	unsized := build(t, pair{vid: "135", aid: "140", vbr: 1, abr: 1})
	got, err := Select(append(sized, unsized), Options{Budget: 0})
	require.NoError(t, err)
	assert.Equal(t, "135+140", got.FormatID())
}

func TestSelect_PreferredLanguage(t *testing.T) {
	ru := build(t, pair{vid: "137", aid: "140", vbr: 4000, abr: 128, lang: "ru"})
	en := build(t, pair{vid: "137", aid: "140", vbr: 4000, abr: 128, lang: "en"})
	opts := Options{Budget: 10 * gib, Languages: []string{"ru", "en"}}

	scored := Score([]formats.CombinedFormat{en, ru}, opts)
	require.Len(t, scored, 2)
	assert.Equal(t, "ru", scored[0].Format.Language())
	assert.InDelta(t, 1.0, scored[0].Language, 1e-9)
	assert.InDelta(t, 0.9, scored[1].Language, 1e-9)

	got, err := Select([]formats.CombinedFormat{en, ru}, opts)
	require.NoError(t, err)
	assert.Equal(t, "ru", got.Language())
}

func TestSelect_NativeBonus(t *testing.T) {
	split := build(t, pair{vid: "137", aid: "140", vbr: 1872, abr: 128})
	nat := native(t, "22", 2000)

	scored := Score([]formats.CombinedFormat{split, nat}, Options{Budget: 10 * gib})
	require.Len(t, scored, 2)
	assert.Equal(t, "22+22", scored[0].Format.FormatID())
	assert.Equal(t, nativeBonus, scored[0].Native)
	assert.Zero(t, scored[1].Native)
}

func TestScore_Deterministic(t *testing.T) {
	cands := []formats.CombinedFormat{
		build(t, pair{vid: "137", aid: "140", vbr: 4000, abr: 128, vsize: 80 << 20, asize: 4 << 20}),
		build(t, pair{vid: "136", aid: "140", vbr: 2000, abr: 128, vsize: 40 << 20, asize: 4 << 20}),
		native(t, "18", 500),
	}
	opts := Options{Budget: 50 << 20, Languages: []string{"en"}}

	first, err := Select(cands, opts)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		got, err := Select(cands, opts)
		require.NoError(t, err)
		assert.Equal(t, first.FormatID(), got.FormatID())
	}
}

func TestScore_TiesKeepInputOrder(t *testing.T) {
	a := build(t, pair{vid: "x1", aid: "y1", vbr: 1000, abr: 100})
	b := build(t, pair{vid: "x2", aid: "y2", vbr: 1000, abr: 100})

	scored := Score([]formats.CombinedFormat{a, b}, Options{Budget: gib})
	require.Len(t, scored, 2)
	assert.Equal(t, scored[0].Total, scored[1].Total)
	assert.Equal(t, "x1+y1", scored[0].Format.FormatID())

	scored = Score([]formats.CombinedFormat{b, a}, Options{Budget: gib})
	assert.Equal(t, "x2+y2", scored[0].Format.FormatID())
}

func TestScore_NoBitrates(t *testing.T) {
	c := build(t, pair{vid: "137", aid: "140"})
	scored := Score([]formats.CombinedFormat{c}, Options{Budget: gib})
	require.Len(t, scored, 1)
	assert.Zero(t, scored[0].Bitrate)
	assert.False(t, math.IsNaN(scored[0].Total))
}

func TestSizeWeight(t *testing.T) {
	const budget = int64(1000)
	tests := []struct {
		name string
		size *int64
		want float64
	}{
		{"unknown", nil, 0.3},
		{"exact budget", i64(1000), 1.0},
		{"edge of near band", i64(800), 0.8},
		{"half near band", i64(900), 0.9},
		{"just outside", i64(799), 0.5 - (1.0/800)*0.2},
		{"far below", i64(0), 0.3},
		{"middle far", i64(400), 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, sizeWeight(tt.size, budget), 1e-9)
		})
	}
}

func TestLanguageWeight(t *testing.T) {
	pref := []string{"ru", "en", "de", "fr", "es", "it", "pt", "pl"}
	assert.Equal(t, 0.2, languageWeight("", pref))
	assert.InDelta(t, 1.0, languageWeight("ru", pref), 1e-9)
	assert.InDelta(t, 0.8, languageWeight("de", pref), 1e-9)
	assert.InDelta(t, 0.4, languageWeight("pl", pref), 1e-9)
	assert.Equal(t, 0.0, languageWeight("ja", pref))
	assert.Equal(t, 0.0, languageWeight("ja", nil))
}

func TestFilter(t *testing.T) {
	small := build(t, pair{vid: "a", aid: "b", vsize: 10})
	big := build(t, pair{vid: "c", aid: "d", vsize: 1000})
	unknown := build(t, pair{vid: "e", aid: "f"})

	got := Filter([]formats.CombinedFormat{small, big, unknown}, 100)
	require.Len(t, got, 2)
	assert.Equal(t, "a+b", got[0].FormatID())
	assert.Equal(t, "e+f", got[1].FormatID())
}
