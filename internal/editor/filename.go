package editor

import (
	"path"
	"strings"
)

const defaultDownloadName = "edited-image.png"

// DownloadName derives the file name offered for the edited image by
// inserting "_edited" before the original extension. "cat.png" becomes
// "cat_edited.png"; an unnamed source falls back to "edited-image.png".
func DownloadName(original string) string {
	original = strings.TrimSpace(original)
	if original == "" {
		return defaultDownloadName
	}

	ext := path.Ext(original)
	base := strings.TrimSuffix(original, ext)
	if base == "" {
		return defaultDownloadName
	}
	if ext == "" {
		ext = ".png"
	}
	return base + "_edited" + ext
}
