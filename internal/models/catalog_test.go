package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	tests := []struct {
		lang, want string
	}{
		{"japan", "jpn"},
		{" Japan ", "jpn"},
		{"en", "eng"},
		{"ch", "chi_sim"},
		{"korean", "kor"},
	}
	for _, tt := range tests {
		got, err := Code(tt.lang)
		require.NoError(t, err, tt.lang)
		assert.Equal(t, tt.want, got)
	}

	_, err := Code("")
	var cerr *ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}

func TestLayoutArtifact(t *testing.T) {
	l := Layout{Home: "/m", Sources: Sources{Det: "https://a/", Rec: "https://b", Cls: "https://c"}}

	a, err := l.Artifact(KindDetector, "JAPAN")
	require.NoError(t, err)
	assert.Equal(t, "japan", a.Lang)
	assert.Equal(t, "jpn_det", a.Name)
	assert.Equal(t, "https://a/jpn.traineddata", a.URL)
	assert.Equal(t, "/m/det/japan/jpn_det/jpn.traineddata", a.Path())

	r, err := l.Artifact(KindRecognizer, "japan")
	require.NoError(t, err)
	assert.Equal(t, "https://b/jpn.traineddata", r.URL)
	assert.NotEqual(t, a.Dir, r.Dir)
}

func TestLanguagesSorted(t *testing.T) {
	langs := Languages()
	assert.Contains(t, langs, "japan")
	assert.IsNonDecreasing(t, langs)
}
