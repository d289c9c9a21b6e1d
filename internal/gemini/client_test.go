package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Options{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		APIVersion: "v1beta",
		HTTPClient: srv.Client(),
	})
}

func TestEditImage_Success(t *testing.T) {
	var gotReq generateContentRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("path = %s, want generateContent suffix", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		_ = json.NewEncoder(w).Encode(generateContentResponse{
			Candidates: []candidate{{
				Content: content{Parts: []part{
					{Text: "done"},
					{InlineData: &blob{Data: "RURJVEVE", MimeType: "image/png"}},
				}},
			}},
		})
	})

	res, err := c.EditImage(context.Background(), ImageInput{
		DataBase64: "U09VUkNF",
		MimeType:   "image/jpeg",
	}, "add a hat")
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}

	if res.DataBase64 != "RURJVEVE" || res.MimeType != "image/png" {
		t.Errorf("result = %+v", res)
	}

	if len(gotReq.Contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(gotReq.Contents))
	}
	parts := gotReq.Contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(parts))
	}
	if parts[0].Text != "add a hat" {
		t.Errorf("prompt part = %q", parts[0].Text)
	}
	if parts[1].InlineData == nil || parts[1].InlineData.Data != "U09VUkNF" || parts[1].InlineData.MimeType != "image/jpeg" {
		t.Errorf("image part = %+v", parts[1].InlineData)
	}
}

func TestEditImage_NoImageInResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateContentResponse{
			Candidates: []candidate{{
				Content: content{Parts: []part{{Text: "I cannot edit this image"}}},
			}},
		})
	})

	_, err := c.EditImage(context.Background(), ImageInput{DataBase64: "U09VUkNF", MimeType: "image/png"}, "add a hat")
	if !errors.Is(err, ErrNoImage) {
		t.Errorf("error = %v, want ErrNoImage", err)
	}
}

func TestEditImage_RemoteFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	})

	_, err := c.EditImage(context.Background(), ImageInput{DataBase64: "U09VUkNF", MimeType: "image/png"}, "add a hat")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error = %v, want status in message", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error = %v, want remote message surfaced", err)
	}
}

func TestEditImage_SingleAttempt(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.EditImage(context.Background(), ImageInput{DataBase64: "U09VUkNF", MimeType: "image/png"}, "add a hat")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want exactly 1 (no retries)", calls)
	}
}

func TestEditImage_Validation(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		img     ImageInput
		prompt  string
		wantErr error
	}{
		{
			name:    "missing api key",
			apiKey:  "",
			img:     ImageInput{DataBase64: "U09VUkNF", MimeType: "image/png"},
			prompt:  "add a hat",
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "empty prompt",
			apiKey:  "k",
			img:     ImageInput{DataBase64: "U09VUkNF", MimeType: "image/png"},
			prompt:  "   ",
			wantErr: ErrEmptyPrompt,
		},
		{
			name:    "empty image",
			apiKey:  "k",
			img:     ImageInput{},
			prompt:  "add a hat",
			wantErr: ErrEmptyImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))
			defer srv.Close()

			c := New(Options{APIKey: tt.apiKey, BaseURL: srv.URL, HTTPClient: srv.Client()})
			_, err := c.EditImage(context.Background(), tt.img, tt.prompt)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if called {
				t.Error("validation error still hit the network")
			}
		})
	}
}

func TestEditImage_StripsDataURLPrefix(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req generateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		data := req.Contents[0].Parts[1].InlineData.Data
		if data != "U09VUkNF" {
			t.Errorf("inline data = %q, want prefix stripped", data)
		}
		_ = json.NewEncoder(w).Encode(generateContentResponse{
			Candidates: []candidate{{
				Content: content{Parts: []part{{InlineData: &blob{Data: "RURJVEVE", MimeType: "image/png"}}}},
			}},
		})
	})

	_, err := c.EditImage(context.Background(), ImageInput{
		DataBase64: "data:image/png;base64,U09VUkNF",
		MimeType:   "image/png",
	}, "add a hat")
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}
}
