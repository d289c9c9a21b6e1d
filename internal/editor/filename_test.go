package editor

import "testing"

func TestDownloadName(t *testing.T) {
	tests := []struct {
		name     string
		original string
		want     string
	}{
		{name: "png", original: "cat.png", want: "cat_edited.png"},
		{name: "jpeg", original: "holiday photo.jpeg", want: "holiday photo_edited.jpeg"},
		{name: "webp", original: "banner.webp", want: "banner_edited.webp"},
		{name: "no extension", original: "snapshot", want: "snapshot_edited.png"},
		{name: "empty", original: "", want: "edited-image.png"},
		{name: "whitespace only", original: "   ", want: "edited-image.png"},
		{name: "extension only", original: ".png", want: "edited-image.png"},
		{name: "double extension", original: "scan.final.png", want: "scan.final_edited.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DownloadName(tt.original); got != tt.want {
				t.Errorf("DownloadName(%q) = %q, want %q", tt.original, got, tt.want)
			}
		})
	}
}
