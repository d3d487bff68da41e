package glob

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"theme/src/assets/scss/bundle.scss":   {Data: []byte("body{}")},
		"theme/src/assets/scss/_vars.scss":    {Data: []byte("$a: 1;")},
		"theme/src/assets/js/bundle.js":       {Data: []byte("x")},
		"theme/src/assets/images/a/logo.png":  {Data: []byte("png")},
		"theme/src/assets/images/readme.txt":  {Data: []byte("txt")},
		"theme/src/assets/fonts/font.woff":    {Data: []byte("woff")},
		"theme/src/assets/vendor/lib/util.js": {Data: []byte("util")},
		"theme/index.php":                     {Data: []byte("<?php")},
	}
}

func collect(t *testing.T, s *Set) []Match {
	t.Helper()
	var got []Match
	for m, err := range s.Walk(testFS()) {
		require.NoError(t, err)
		got = append(got, m)
	}
	return got
}

func TestSet_WalkLiteral(t *testing.T) {
	s := MustNew("theme/src/assets/scss/bundle.scss")
	got := collect(t, s)
	require.Len(t, got, 1)
	assert.Equal(t, "theme/src/assets/scss/bundle.scss", got[0].Path)
	assert.Equal(t, "theme/src/assets/scss", got[0].Base)
	assert.Equal(t, "bundle.scss", got[0].Rel())
}

func TestSet_WalkBraces(t *testing.T) {
	s := MustNew("theme/src/assets/images/**/*.{jpg,png}")
	got := collect(t, s)
	require.Len(t, got, 1)
	assert.Equal(t, "a/logo.png", got[0].Rel())
}

func TestSet_WalkExclusions(t *testing.T) {
	s := MustNew(
		"theme/src/assets/**/*",
		"!theme/src/assets/{images,js,scss}",
		"!theme/src/assets/{images,js,scss}/**/*",
	)
	var rels []string
	for _, m := range collect(t, s) {
		rels = append(rels, m.Rel())
	}
	assert.Equal(t, []string{"fonts/font.woff", "vendor/lib/util.js"}, rels)
}

func TestSet_WalkNoMatches(t *testing.T) {
	s := MustNew("theme/missing/**/*.scss")
	assert.Empty(t, collect(t, s))
}

func TestSet_WalkDeduplicates(t *testing.T) {
	s := MustNew("theme/**/*.php", "theme/index.php")
	got := collect(t, s)
	require.Len(t, got, 1)
	assert.Equal(t, "theme", got[0].Base)
}

func TestSet_WalkStopsEarly(t *testing.T) {
	s := MustNew("theme/**/*")
	n := 0
	for range s.Walk(testFS()) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestSet_Match(t *testing.T) {
	s := MustNew("theme/**/*.php", "!theme/vendor/**")
	assert.True(t, s.Match("theme/index.php"))
	assert.True(t, s.Match("./theme/inc/setup.php"))
	assert.False(t, s.Match("theme/vendor/x.php"))
	assert.False(t, s.Match("theme/style.css"))
}

func TestNew_BadPattern(t *testing.T) {
	_, err := New("theme/[")
	assert.ErrorIs(t, err, ErrBadPattern)
}
