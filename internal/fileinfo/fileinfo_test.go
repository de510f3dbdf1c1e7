package fileinfo

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilenameAndExt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantName string
		wantExt  string
		wantErr  bool
	}{
		{name: "image", raw: "https://example.com/photo.jpg", wantName: "photo.jpg", wantExt: "jpg"},
		{name: "upper case ext", raw: "https://example.com/dir/CLIP.MP4?x=1", wantName: "CLIP.mp4", wantExt: "mp4"},
		{name: "escaped", raw: "https://example.com/my%20file.zip", wantName: "my file.zip", wantExt: "zip"},
		{name: "html page", raw: "https://example.com/index.html", wantErr: true},
		{name: "no ext", raw: "https://example.com/album/abc", wantErr: true},
		{name: "root", raw: "https://example.com/", wantErr: true},
		{name: "empty path", raw: "https://example.com", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			u, err := url.Parse(tc.raw)
			require.NoError(t, err)

			name, ext, err := FilenameAndExt(u)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrNoExtension)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantName, name)
			assert.Equal(t, tc.wantExt, ext)
		})
	}
}

func TestFilenameAndExtNilURL(t *testing.T) {
	t.Parallel()

	_, _, err := FilenameAndExt(nil)
	require.ErrorIs(t, err, ErrNoExtension)
}

func TestRecognized(t *testing.T) {
	t.Parallel()

	assert.True(t, Recognized(".JPG"))
	assert.True(t, Recognized("mkv"))
	assert.True(t, Recognized("7z"))
	assert.False(t, Recognized("php"))
	assert.False(t, Recognized(""))
	assert.True(t, IsDirectFile(&url.URL{Scheme: "https", Host: "a.b", Path: "/x.flac"}))
}
