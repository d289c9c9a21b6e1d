package mediagroup

import (
	"testing"
	"time"
)

func TestAggregator_FlushResolvesToNewestPhoto(t *testing.T) {
	flushed := make(chan Album, 1)
	a := New(Options{
		Debounce: 20 * time.Millisecond,
		OnFlush:  func(album Album) { flushed <- album },
	})

	a.Add(Item{ChatID: 7, MediaGroupID: "g1", FileID: "f1", Caption: "make it sunny"})
	a.Add(Item{ChatID: 7, MediaGroupID: "g1", FileID: "f2"})
	a.Add(Item{ChatID: 7, MediaGroupID: "g1", FileID: "f3"})

	select {
	case album := <-flushed:
		if album.ChatID != 7 {
			t.Errorf("chat id = %d", album.ChatID)
		}
		if album.LastFileID != "f3" {
			t.Errorf("last file = %q, want newest photo", album.LastFileID)
		}
		if album.PhotoCount != 3 {
			t.Errorf("photo count = %d", album.PhotoCount)
		}
		if album.Caption != "make it sunny" {
			t.Errorf("caption = %q", album.Caption)
		}
	case <-time.After(time.Second):
		t.Fatal("album never flushed")
	}
}

func TestAggregator_SeparateChatsDoNotMix(t *testing.T) {
	flushed := make(chan Album, 2)
	a := New(Options{
		Debounce: 20 * time.Millisecond,
		OnFlush:  func(album Album) { flushed <- album },
	})

	a.Add(Item{ChatID: 1, MediaGroupID: "g", FileID: "a1"})
	a.Add(Item{ChatID: 2, MediaGroupID: "g", FileID: "b1"})

	got := map[int64]Album{}
	for i := 0; i < 2; i++ {
		select {
		case album := <-flushed:
			got[album.ChatID] = album
		case <-time.After(time.Second):
			t.Fatal("albums never flushed")
		}
	}

	if got[1].LastFileID != "a1" || got[2].LastFileID != "b1" {
		t.Errorf("albums mixed between chats: %+v", got)
	}
}

func TestAggregator_IgnoresIncompleteItems(t *testing.T) {
	a := New(Options{
		Debounce: 10 * time.Millisecond,
		OnFlush:  func(Album) { t.Error("unexpected flush") },
	})

	a.Add(Item{ChatID: 1, MediaGroupID: "", FileID: "f"})
	a.Add(Item{ChatID: 1, MediaGroupID: "g", FileID: ""})

	time.Sleep(50 * time.Millisecond)
}
