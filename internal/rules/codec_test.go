package rules

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIcon(fill color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	img.SetNRGBA(0, 0, color.NRGBA{A: 0})
	return img
}

func testBitmap(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testIcon(color.NRGBA{R: 200, G: 10, B: 10, A: 255})))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func ruleJSON(pkg, bitmap string, enabled, enabledAll bool, extra string) string {
	return fmt.Sprintf(`{"appName":"App %[1]s","packageName":%[1]q,"isEnabled":%[3]t,"isEnabledAll":%[4]t,"iconBitmap":%[2]q,"contributorName":"someone"%[5]s}`,
		pkg, bitmap, enabled, enabledAll, extra)
}

func samePixels(t *testing.T, want, got image.Image) {
	t.Helper()
	require.Equal(t, want.Bounds(), got.Bounds())
	b := want.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			w := color.NRGBAModel.Convert(want.At(x, y))
			g := color.NRGBAModel.Convert(got.At(x, y))
			require.Equal(t, w, g, "pixel %d,%d", x, y)
		}
	}
}

func TestParse(t *testing.T) {
	bitmap := testBitmap(t)

	t.Run("keeps order and fields", func(t *testing.T) {
		blob := "[" + ruleJSON("com.foo", bitmap, true, false, `,"iconColor":"#FF0000"`) + "," +
			ruleJSON("com.bar", bitmap, false, true, "") + "]"

		set, report := ParseWithReport(blob)
		require.Equal(t, 2, set.Len())
		assert.Equal(t, 2, report.Total)
		assert.Equal(t, 0, report.Dropped)
		assert.False(t, report.Malformed)

		entries := set.Entries()
		assert.Equal(t, "com.foo", entries[0].PackageName)
		assert.Equal(t, "App com.foo", entries[0].AppName)
		assert.Equal(t, "someone", entries[0].ContributorName)
		assert.True(t, entries[0].IsEnabled)
		assert.False(t, entries[0].IsEnabledAll)
		c, ok := entries[0].Color()
		assert.True(t, ok)
		assert.Equal(t, Color(0xFFFF0000), c)

		assert.Equal(t, "com.bar", entries[1].PackageName)
		_, ok = entries[1].Color()
		assert.False(t, ok)
	})

	t.Run("drops malformed elements", func(t *testing.T) {
		blob := "[" +
			ruleJSON("com.good", bitmap, true, true, "") + "," +
			`{"packageName":"com.nobitmap","isEnabled":true,"isEnabledAll":true},` +
			ruleJSON("com.badbitmap", "!!!not-base64!!!", true, true, "") + "," +
			`{"packageName":5}` + "," +
			`"just a string"` + "," +
			`null` +
			"]"

		set, report := ParseWithReport(blob)
		assert.Equal(t, 1, set.Len())
		assert.Equal(t, 6, report.Total)
		assert.Equal(t, 5, report.Dropped)
		assert.True(t, set.Contains("com.good"))
	})

	t.Run("whole document failure yields empty set", func(t *testing.T) {
		for _, blob := range []string{"not json", `{"packageName":"com.foo"}`, "[1,2", "<html></html>"} {
			set, report := ParseWithReport(blob)
			assert.Equal(t, 0, set.Len(), blob)
			assert.True(t, report.Malformed, blob)
			assert.Error(t, report.Err, blob)
		}
	})

	t.Run("blank blob is empty not malformed", func(t *testing.T) {
		set, report := ParseWithReport("  ")
		assert.Equal(t, 0, set.Len())
		assert.False(t, report.Malformed)
	})

	t.Run("unparseable color means no color", func(t *testing.T) {
		set := Parse("[" + ruleJSON("com.foo", bitmap, true, true, `,"iconColor":"#GGHHII"`) + "," +
			ruleJSON("com.bar", bitmap, true, true, `,"iconColor":12`) + "]")
		require.Equal(t, 2, set.Len())
		for _, e := range set.Entries() {
			_, ok := e.Color()
			assert.False(t, ok, e.PackageName)
		}
	})

	t.Run("tolerates wrapped base64", func(t *testing.T) {
		var wrapped strings.Builder
		for i, r := range bitmap {
			if i > 0 && i%76 == 0 {
				wrapped.WriteString(`\n`)
			}
			wrapped.WriteRune(r)
		}
		blob := fmt.Sprintf(`[{"packageName":"com.foo","isEnabled":true,"isEnabledAll":false,"iconBitmap":"%s"}]`, wrapped.String())
		set := Parse(blob)
		require.Equal(t, 1, set.Len())
		e, _ := set.Find("com.foo")
		assert.Equal(t, "", e.AppName)
	})
}

func TestSerializeRoundTrip(t *testing.T) {
	icon := testIcon(color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	in := NewRuleSet([]Entry{
		{AppName: "Foo", PackageName: "com.foo", IsEnabled: true, IsEnabledAll: false, Icon: icon, IconColor: 0xFF112233, HasIconColor: true, ContributorName: "a"},
		{AppName: "Bar", PackageName: "com.bar", IsEnabled: false, IsEnabledAll: true, Icon: icon, ContributorName: "b"},
	})

	blob, err := Serialize(in)
	require.NoError(t, err)
	assert.True(t, IsValidJSONArray(blob))
	assert.Contains(t, blob, `"iconColor":"#FF112233"`)
	assert.Equal(t, 1, strings.Count(blob, "iconColor"))

	out, report := ParseWithReport(blob)
	require.Equal(t, 0, report.Dropped)
	require.Equal(t, in.Len(), out.Len())

	for i, want := range in.Entries() {
		got := out.Entries()[i]
		assert.Equal(t, want.AppName, got.AppName)
		assert.Equal(t, want.PackageName, got.PackageName)
		assert.Equal(t, want.IsEnabled, got.IsEnabled)
		assert.Equal(t, want.IsEnabledAll, got.IsEnabledAll)
		assert.Equal(t, want.IconColor, got.IconColor)
		assert.Equal(t, want.HasIconColor, got.HasIconColor)
		assert.Equal(t, want.ContributorName, got.ContributorName)
		samePixels(t, want.Icon, got.Icon)
	}
}

func TestSerializeRequiresIcon(t *testing.T) {
	_, err := Serialize(NewRuleSet([]Entry{{PackageName: "com.foo"}}))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	bitmap := testBitmap(t)
	a := "[" + ruleJSON("com.a", bitmap, true, true, "") + "]"
	b := "[" + ruleJSON("com.b", bitmap, true, true, "") + "," + ruleJSON("com.c", bitmap, true, true, "") + "]"

	merged := Merge(a, b)
	assert.True(t, IsValidJSONArray(merged))

	set, report := ParseWithReport(merged)
	assert.False(t, report.Malformed)
	assert.Equal(t, []string{"com.a", "com.b", "com.c"}, set.Packages())

	assert.Equal(t, b, Merge("", b))
	assert.Equal(t, b, Merge("[]", b))
	assert.Equal(t, a, Merge(a, "[ ]"))
	assert.Equal(t, a, Merge(a, ""))
	assert.Equal(t, "[]", Merge("", ""))
}

func TestIsValidJSONArray(t *testing.T) {
	assert.True(t, IsValidJSONArray("[]"))
	assert.True(t, IsValidJSONArray("  [1,2]\n"))
	assert.True(t, IsValidJSONArray("[garbage]"))
	assert.False(t, IsValidJSONArray(""))
	assert.False(t, IsValidJSONArray("{}"))
	assert.False(t, IsValidJSONArray("[1,2"))
	assert.False(t, IsValidJSONArray("<html>[]</html>"))
}

func TestIsChallengePage(t *testing.T) {
	page := `<html><title>Attention</title><body>Checking your browser before accessing raw.example.com</body></html>`
	assert.True(t, IsChallengePage(page))
	assert.True(t, IsChallengePage("<title>Just a moment...</title>"))
	assert.False(t, IsChallengePage(`[{"packageName":"com.foo"}]`))
}

func TestDiffers(t *testing.T) {
	assert.False(t, Differs("[1]", " [1]\n"))
	assert.True(t, Differs("[1]", "[2]"))
	assert.True(t, Differs("", "[]"))
}
