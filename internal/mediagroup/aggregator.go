package mediagroup

import (
	"fmt"
	"sync"
	"time"
)

// Telegram delivers an album as separate photo updates sharing a media group
// id. An edit session holds exactly one source image, so the aggregator
// debounces the album and resolves it to its newest photo.

type Item struct {
	ChatID       int64
	MediaGroupID string
	Caption      string
	FileID       string
}

type Album struct {
	ChatID     int64
	Caption    string
	LastFileID string
	PhotoCount int
}

type Options struct {
	Debounce time.Duration
	OnFlush  func(Album)
}

type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	onFlush  func(Album)
	albums   map[string]*pendingAlbum
}

type pendingAlbum struct {
	album Album
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		onFlush:  opts.OnFlush,
		albums:   make(map[string]*pendingAlbum),
	}
}

func (a *Aggregator) Add(item Item) {
	if item.MediaGroupID == "" || item.FileID == "" {
		return
	}

	key := makeKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()

	pa, ok := a.albums[key]
	if !ok {
		pa = &pendingAlbum{
			album: Album{ChatID: item.ChatID},
		}
		a.albums[key] = pa
	}

	pa.album.LastFileID = item.FileID
	pa.album.PhotoCount++
	if item.Caption != "" {
		pa.album.Caption = item.Caption
	}

	if pa.timer != nil {
		pa.timer.Stop()
	}
	pa.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pa, ok := a.albums[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.albums, key)
	album := pa.album
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(album)
	}
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
