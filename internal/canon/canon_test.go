package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asinshort/pkg/models"
)

const base = "https://www.amazon.co.jp"

func TestIsCanonical(t *testing.T) {
	tests := []struct {
		name string
		link string
		want bool
	}{
		{"shortest form", base + "/dp/B000000000", true},
		{"isbn digits", base + "/dp/4000000000", true},
		{"upper case everything", "HTTPS://WWW.AMAZON.CO.JP/DP/B000000000", true},
		{"lower case asin", base + "/dp/b00000000x", true},
		{"trailing slash", base + "/dp/B000000000/", false},
		{"query string", base + "/dp/B000000000?ref=xyz", false},
		{"title segment", base + "/Some-Title/dp/B000000000", false},
		{"plain http", "http://www.amazon.co.jp/dp/B000000000", false},
		{"no www", "https://amazon.co.jp/dp/B000000000", false},
		{"short id", base + "/dp/B00000000", false},
		{"long id", base + "/dp/B0000000000", false},
		{"other store", "https://www.amazon.com/dp/B000000000", false},
		{"long s in asin", base + "/dp/B00000000\u017f", false},
		{"kelvin sign in asin", base + "/dp/\u212a000000000", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCanonical(tt.link))
		})
	}
}

func TestExtractIdentifier_LegacyShapes(t *testing.T) {
	tests := []struct {
		name  string
		link  string
		asin  string
		shape models.Shape
	}{
		{"exec obidos asin", base + "/exec/obidos/ASIN/B000000000", "B000000000", models.ExecObidosASIN},
		{"o asin", base + "/o/ASIN/B000000000/ref=nosim", "B000000000", models.OASIN},
		{"exec obidos isbn equals", base + "/exec/obidos/ISBN=4000000000", "4000000000", models.ExecObidosISBN},
		{"exec obidos isbn escaped", base + "/exec/obidos/ISBN%3D4000000000", "4000000000", models.ExecObidosISBN},
		{"o isbn equals", base + "/o/ISBN=4000000000", "4000000000", models.OISBN},
		{"exec obidos detail", base + "/exec/obidos/tg/detail/-/B000000000", "B000000000", models.ExecObidosDetail},
		{"exec obidos detail titled", base + "/exec/obidos/tg/detail/-/Elements-Style/B000000000", "B000000000", models.ExecObidosDetail},
		{"o detail", base + "/o/tg/detail/-/B000000000", "B000000000", models.ODetail},
		{"o detail titled", base + "/o/tg/detail/-/Elements-Style/B000000000/", "B000000000", models.ODetail},
		{"gp product", base + "/gp/product/B000000000", "B000000000", models.GPProduct},
		{"gp product description", base + "/gp/product/product-description/B000000000", "B000000000", models.GPProductDescription},
		{"titled dp", base + "/Some-Title/dp/B000000000", "B000000000", models.SegmentDP},
		{"titled dp description", base + "/Some-Title/dp/product-description/B000000000", "B000000000", models.SegmentDP},
		{"encoded title dp", base + "/%E3%83%86%E3%82%B9%E3%83%88/dp/B000000000/ref=sr_1_1", "B000000000", models.SegmentDP},
		{"dp with query", base + "/dp/B000000000?ref=xyz", "B000000000", models.SegmentDP},
		{"path only dp with query", "/dp/B000000000?ref=xyz", "B000000000", models.QueryDP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asin, ok := ExtractIdentifier(tt.link)
			require.True(t, ok, "no identifier in %s", tt.link)
			assert.Equal(t, tt.asin, asin)

			gotASIN, shape := Classify(tt.link)
			assert.Equal(t, tt.asin, gotASIN)
			assert.Equal(t, tt.shape, shape, "shape %s", shape)
		})
	}
}

func TestExtractIdentifier_KeepsCase(t *testing.T) {
	asin, ok := ExtractIdentifier(base + "/GP/PRODUCT/b00000000x")
	require.True(t, ok)
	assert.Equal(t, "b00000000x", asin)
}

func TestExtractIdentifier_NoMatch(t *testing.T) {
	for _, link := range []string{
		"",
		"not a url",
		"https://example.com/",
		base + "/",
		base + "/s?k=golang",
		base + "/gp/cart/view.html",
		base + "/dp/B00000",
		base + "/gp/product/B000-00000",
		"https://www.amazon.co.jp/exec/obidos/ISBN:4000000000",
		base + "/gp/product/B00000000\u017f",
		base + "/gp/product/\u212a000000000",
		base + "/Title/dp/\u212a000000000/",
		base + "/o/ASIN/\u017f000000000",
	} {
		asin, ok := ExtractIdentifier(link)
		assert.False(t, ok, "unexpected match %q in %q", asin, link)
		assert.Empty(t, asin)

		_, shape := Classify(link)
		assert.Equal(t, models.None, shape)
	}
}

func TestClassify_Canonical(t *testing.T) {
	asin, shape := Classify(base + "/dp/B000000000")
	assert.Equal(t, "B000000000", asin)
	assert.Equal(t, models.Canonical, shape)
}

func TestRewrite(t *testing.T) {
	target, asin, shape, ok := Rewrite(base + "/Some-Title/dp/B000000000")
	require.True(t, ok)
	assert.Equal(t, base+"/dp/B000000000", target)
	assert.Equal(t, "B000000000", asin)
	assert.Equal(t, models.SegmentDP, shape)

	target, asin, shape, ok = Rewrite(base + "/gp/product/B000000000")
	require.True(t, ok)
	assert.Equal(t, base+"/dp/B000000000", target)
	assert.Equal(t, "B000000000", asin)
	assert.Equal(t, models.GPProduct, shape)

	_, _, shape, ok = Rewrite(base + "/dp/B000000000")
	assert.False(t, ok, "canonical URL must be left alone")
	assert.Equal(t, models.Canonical, shape)

	_, asin, shape, ok = Rewrite("https://example.com/whatever")
	assert.False(t, ok)
	assert.Empty(t, asin)
	assert.Equal(t, models.None, shape)
}

func TestExtractIdentifier_ASCIIOnly(t *testing.T) {
	// U+017F and U+212A fold to s and k; the identifier must still be ASCII
	for _, link := range []string{
		base + "/gp/product/\u017f\u212a00000000",
		base + "/dp/\u212a000000000?ref=x",
	} {
		_, _, _, ok := Rewrite(link)
		assert.False(t, ok, link)
	}

	// literal path parts still fold case
	target, asin, _, ok := Rewrite(base + "/EXEC/OBIDOS/isbn%3d4000000000")
	require.True(t, ok)
	assert.Equal(t, "4000000000", asin)
	assert.Equal(t, base+"/dp/4000000000", target)
}

func TestRewrite_TargetIsStable(t *testing.T) {
	// Following a redirect must never produce another one.
	for _, link := range []string{
		base + "/exec/obidos/ASIN/B000000000",
		base + "/o/ISBN=4000000000",
		base + "/o/tg/detail/-/Elements-Style/B000000000",
		base + "/gp/product/product-description/B000000000",
		base + "/Title/dp/B000000000?th=1",
	} {
		target, _, _, ok := Rewrite(link)
		require.True(t, ok, link)
		assert.True(t, IsCanonical(target), target)
		_, _, _, again := Rewrite(target)
		assert.False(t, again, target)
	}
}

func TestRules_PriorityOrder(t *testing.T) {
	rs := Rules()
	require.Len(t, rs, 11)
	assert.Equal(t, models.ExecObidosASIN, rs[0].Shape)
	assert.Equal(t, models.QueryDP, rs[len(rs)-1].Shape)

	// mutating the copy must not affect extraction
	rs[0] = Rule{}
	asin, ok := ExtractIdentifier(base + "/exec/obidos/ASIN/B000000000")
	require.True(t, ok)
	assert.Equal(t, "B000000000", asin)
}

func TestInScope(t *testing.T) {
	tests := []struct {
		link string
		want bool
	}{
		{base + "/dp/B000000000", true},
		{"https://amazon.co.jp/gp/product/B000000000", true},
		{"https://smile.amazon.co.jp/", true},
		{"https://WWW.AMAZON.CO.JP:443/dp/B000000000", true},
		{"https://www.amazon.com/dp/B000000000", false},
		{"https://amazon.co.jp.example.com/dp/B000000000", false},
		{"https://notamazon.co.jp/dp/B000000000", false},
		{"/dp/B000000000", false},
		{"::", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InScope(tt.link, Domain), tt.link)
	}
}

func TestNormalizeInput(t *testing.T) {
	assert.Equal(t, base+"/dp/B000000000", NormalizeInput("　ｈｔｔｐｓ://www.amazon.co.jp/dp/Ｂ０００００００００ \n"))
	assert.Equal(t, base+"/dp/B000000000", NormalizeInput(base+"/dp/B000000000"))
}
