package editor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"retouch-ai/internal/gemini"
)

// Phases of an edit session. A session starts empty, holds at most one
// source image and at most one in-flight edit request.
const (
	PhaseEmpty       = "empty"
	PhaseImageLoaded = "image-loaded"
	PhaseGenerating  = "generating"
	PhaseEdited      = "edited"
	PhaseError       = "error"
)

var (
	ErrEmptyImage       = errors.New("image is empty")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrNoSource         = errors.New("no image loaded")
	ErrEmptyPrompt      = errors.New("prompt is empty")
	ErrBusy             = errors.New("edit request already in flight")
	ErrNoEditedImage    = errors.New("no edited image")
)

var allowedMimeTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/webp": {},
}

// Client is the one remote call a session makes.
type Client interface {
	EditImage(ctx context.Context, img gemini.ImageInput, prompt string) (gemini.EditResult, error)
}

type Options struct {
	Client Client
	Logger *slog.Logger
}

type Session struct {
	mu     sync.Mutex
	client Client
	logger *slog.Logger

	// gen changes whenever the source image changes, so an in-flight
	// result can be dropped if it no longer belongs to the current source.
	gen uint64

	source     *sourceImage
	prompt     string
	edited     string
	lastError  string
	generating bool
}

type sourceImage struct {
	dataBase64 string
	mimeType   string
	fileName   string
}

type View struct {
	Phase        string `json:"phase"`
	FileName     string `json:"fileName,omitempty"`
	Source       string `json:"source,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	Edited       string `json:"edited,omitempty"`
	Error        string `json:"error,omitempty"`
	Generating   bool   `json:"generating"`
	CanSubmit    bool   `json:"canSubmit"`
	DownloadName string `json:"downloadName,omitempty"`
}

func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Session{
		client: opts.Client,
		logger: logger,
	}
}

// LoadImage replaces the source image. Any previous edit result and error
// are discarded. Accepted types: PNG, JPEG, WEBP.
func (s *Session) LoadImage(data []byte, declaredType, fileName string) error {
	if len(data) == 0 {
		return ErrEmptyImage
	}

	mimeType := normalizeMimeType(declaredType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeMimeType(http.DetectContentType(data))
	}
	if _, ok := allowedMimeTypes[mimeType]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.source = &sourceImage{
		dataBase64: base64.StdEncoding.EncodeToString(data),
		mimeType:   mimeType,
		fileName:   strings.TrimSpace(fileName),
	}
	s.edited = ""
	s.lastError = ""
	return nil
}

func (s *Session) SetPrompt(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompt = strings.TrimSpace(text)
}

// Clear drops the source image, the edit result, the prompt and any error.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.source = nil
	s.prompt = ""
	s.edited = ""
	s.lastError = ""
}

func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source != nil && s.prompt != "" && !s.generating
}

// Submit issues exactly one edit request with the loaded image and the
// current prompt. A second submit while one is in flight fails with ErrBusy.
// On failure the source, prompt and any previous edit result stay intact so
// the user can retry.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.source == nil {
		s.mu.Unlock()
		return ErrNoSource
	}
	if s.prompt == "" {
		s.mu.Unlock()
		return ErrEmptyPrompt
	}

	img := gemini.ImageInput{
		DataBase64: s.source.dataBase64,
		MimeType:   s.source.mimeType,
	}
	prompt := s.prompt
	gen := s.gen
	s.generating = true
	s.mu.Unlock()

	res, err := s.client.EditImage(ctx, img, prompt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = false

	if gen != s.gen {
		// Source was cleared or replaced while the request was in flight.
		s.logger.Debug("dropping stale edit result")
		return err
	}

	if err != nil {
		s.lastError = err.Error()
		return err
	}

	s.edited = fmt.Sprintf("data:%s;base64,%s", res.MimeType, res.DataBase64)
	s.lastError = ""
	return nil
}

// EditedImage returns the decoded bytes and media type of the last edit
// result, for download.
func (s *Session) EditedImage() ([]byte, string, error) {
	s.mu.Lock()
	edited := s.edited
	s.mu.Unlock()

	if edited == "" {
		return nil, "", ErrNoEditedImage
	}

	mimeType, dataBase64, err := splitDataURL(edited)
	if err != nil {
		return nil, "", err
	}
	data, err := base64.StdEncoding.DecodeString(dataBase64)
	if err != nil {
		return nil, "", fmt.Errorf("decode edited image: %w", err)
	}
	return data, mimeType, nil
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Prompt:     s.prompt,
		Edited:     s.edited,
		Error:      s.lastError,
		Generating: s.generating,
		CanSubmit:  s.source != nil && s.prompt != "" && !s.generating,
	}

	if s.source != nil {
		v.FileName = s.source.fileName
		v.Source = fmt.Sprintf("data:%s;base64,%s", s.source.mimeType, s.source.dataBase64)
		v.DownloadName = DownloadName(s.source.fileName)
	}

	switch {
	case s.generating:
		v.Phase = PhaseGenerating
	case s.source == nil:
		v.Phase = PhaseEmpty
	case s.lastError != "":
		v.Phase = PhaseError
	case s.edited != "":
		v.Phase = PhaseEdited
	default:
		v.Phase = PhaseImageLoaded
	}

	return v
}

func normalizeMimeType(value string) string {
	value = strings.TrimSpace(value)
	if strings.Contains(value, ";") {
		value = strings.TrimSpace(strings.SplitN(value, ";", 2)[0])
	}
	return strings.ToLower(value)
}

func splitDataURL(value string) (mimeType, dataBase64 string, err error) {
	const prefix = "data:"
	if !strings.HasPrefix(value, prefix) {
		return "", "", errors.New("invalid data url")
	}

	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return "", "", errors.New("invalid data url")
	}

	meta := strings.TrimPrefix(parts[0], prefix)
	mimeType = strings.TrimSpace(strings.Split(meta, ";")[0])
	if mimeType == "" {
		mimeType = "image/png"
	}
	return mimeType, parts[1], nil
}
