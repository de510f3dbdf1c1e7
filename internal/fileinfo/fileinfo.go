// Package fileinfo infers a download filename and extension from a URL.
package fileinfo

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrNoExtension means the URL does not end in a recognized file extension.
var ErrNoExtension = errors.New("no recognized file extension")

// Recognized extensions, without the leading dot.
var (
	Images = []string{"jpg", "jpeg", "png", "gif", "gifv", "webp", "jpe", "svg", "jfif", "tif", "tiff", "jif"}
	Videos = []string{
		"mpeg", "avchd", "webm", "mpv", "swf", "avi", "m4p", "wmv", "mp2", "m4v", "qt", "mpe",
		"mp4", "flv", "mov", "mpg", "ogg", "mkv", "mts", "ts", "f4v",
	}
	Audio = []string{"mp3", "flac", "wav", "m4a"}
	Other = []string{"json", "torrent", "zip", "rar", "7z", "tar"}
)

var known = func() map[string]struct{} {
	out := make(map[string]struct{})
	for _, set := range [][]string{Images, Videos, Audio, Other} {
		for _, ext := range set {
			out[ext] = struct{}{}
		}
	}
	return out
}()

// Recognized reports whether ext (with or without a leading dot) is a known
// media or archive extension.
func Recognized(ext string) bool {
	_, ok := known[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}

// FilenameAndExt returns the final path segment and its lowercase extension
// (no leading dot). It fails with ErrNoExtension when the URL does not name a
// recognized file.
func FilenameAndExt(u *url.URL) (string, string, error) {
	if u == nil {
		return "", "", fmt.Errorf("nil url: %w", ErrNoExtension)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", "", fmt.Errorf("%s: %w", u.Redacted(), ErrNoExtension)
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	ext := path.Ext(name)
	if ext == "" || !Recognized(ext) {
		return "", "", fmt.Errorf("%s: %w", u.Redacted(), ErrNoExtension)
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	stem := strings.TrimSuffix(name, path.Ext(name))
	return stem + "." + ext, ext, nil
}

// IsDirectFile reports whether the URL points straight at a recognized file.
func IsDirectFile(u *url.URL) bool {
	_, _, err := FilenameAndExt(u)
	return err == nil
}
