package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cna-research/geoharvest/internal/allowlist"
)

const externalPrefix = "https://reports.example.gov/mines-docs"

func newTestClassifier(ids ...string) *Classifier {
	return New([]string{".pdf", ".zip"}, externalPrefix, allowlist.Build(ids))
}

func TestClassify(t *testing.T) {
	c := newTestClassifier("GF-100")

	markup := `<html><body>
		<a href="files/GF-100_report.PDF">report</a>
		<a href="/data/archive.zip">archive</a>
		<a href="` + externalPrefix + `/GF-100/">detail</a>
		<a href="` + externalPrefix + `/GF-999/">filtered detail</a>
		<a href="display.asp?page=2">page 2</a>
		<a href="mailto:clerk@example.gov">mail</a>
	</body></html>`

	got := c.Classify(markup, "https://catalog.example.gov/minesen/geofiles/")
	require.Len(t, got, 3)

	assert.Equal(t, Candidate{
		URL:  "https://catalog.example.gov/minesen/geofiles/files/GF-100_report.PDF",
		Kind: DirectArtifact,
	}, got[0])
	assert.Equal(t, Candidate{
		URL:  "https://catalog.example.gov/data/archive.zip",
		Kind: DirectArtifact,
	}, got[1])
	assert.Equal(t, Candidate{
		URL:  externalPrefix + "/GF-100/",
		Kind: ExternalDetail,
	}, got[2])
}

func TestClassifyEmptyMarkup(t *testing.T) {
	c := newTestClassifier("GF-100")
	assert.Empty(t, c.Classify("", "https://catalog.example.gov/"))
}

func TestClassifyArtifactPrecedesExternal(t *testing.T) {
	// An artifact link under the external prefix is still a direct artifact.
	c := newTestClassifier("GF-100")
	markup := `<a href="` + externalPrefix + `/GF-100.pdf">x</a>`
	got := c.Classify(markup, externalPrefix)
	require.Len(t, got, 1)
	assert.Equal(t, DirectArtifact, got[0].Kind)
}

func TestDetailArtifacts(t *testing.T) {
	c := newTestClassifier("GF-100")

	t.Run("ArtifactsOnly", func(t *testing.T) {
		markup := `<a href="a.pdf">a</a><a href="b.txt">b</a>`
		got := c.DetailArtifacts(markup, externalPrefix+"/GF-100/")
		assert.Equal(t, []string{externalPrefix + "/GF-100/a.pdf"}, got)
	})

	t.Run("NoChainingIntoNestedDetailPages", func(t *testing.T) {
		markup := `<a href="` + externalPrefix + `/GF-100/deeper/">deeper</a>`
		assert.Empty(t, c.DetailArtifacts(markup, externalPrefix+"/GF-100/"))
	})

	t.Run("QueryStringDoesNotDefeatExtensionCheck", func(t *testing.T) {
		markup := `<a href="a.pdf?download=1">a</a>`
		got := c.DetailArtifacts(markup, externalPrefix+"/GF-100/")
		assert.Equal(t, []string{externalPrefix + "/GF-100/a.pdf?download=1"}, got)
	})
}

func TestLastPage(t *testing.T) {
	cases := []struct {
		name   string
		markup string
		want   int
	}{
		{
			name:   "ControlPresent",
			markup: `<a href="javascript:goPage( 13, 'display.asp')"><img src="img/last.gif"></a>`,
			want:   13,
		},
		{
			name:   "ControlAbsent",
			markup: `<p>single page of results</p>`,
			want:   1,
		},
		{
			name:   "ImageWithoutAnchorHref",
			markup: `<span><img src="img/last.gif"></span>`,
			want:   1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LastPage(tc.markup))
		})
	}
}

func TestNextHref(t *testing.T) {
	t.Run("ResolvesRelativeHref", func(t *testing.T) {
		markup := `<a href="display.asp?pageCt=3"><img src="img/next.gif"></a>`
		got, ok := NextHref(markup, "https://catalog.example.gov/minesen/geofiles/display.asp")
		require.True(t, ok)
		assert.Equal(t, "https://catalog.example.gov/minesen/geofiles/display.asp?pageCt=3", got)
	})

	t.Run("ScriptHrefIsNotNavigable", func(t *testing.T) {
		markup := `<a href="javascript:goPage(3,'display.asp')"><img src="img/next.gif"></a>`
		_, ok := NextHref(markup, "https://catalog.example.gov/")
		assert.False(t, ok)
	})

	t.Run("Missing", func(t *testing.T) {
		_, ok := NextHref(`<p>no pager</p>`, "https://catalog.example.gov/")
		assert.False(t, ok)
	})
}
