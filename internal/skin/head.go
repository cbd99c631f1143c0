// Package skin downloads Minecraft skin textures and renders the face.
package skin

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/image/draw"
)

const (
	// HeadSize is the edge length of the rendered head in pixels.
	HeadSize = 32

	maxTextureSize = 1 << 20
)

// Fetcher downloads skin textures. Texture GETs are idempotent, so unlike
// token exchanges they are retried.
type Fetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a fetcher with its own retrying client.
func NewFetcher(logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = logger
	retryClient.HTTPClient.Timeout = 30 * time.Second

	return &Fetcher{
		httpClient: retryClient.StandardClient(),
		logger:     logger,
	}
}

// Head downloads the skin at skinURL and returns its face as a HeadSize
// square PNG.
func (f *Fetcher) Head(ctx context.Context, skinURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, skinURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading skin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading skin: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTextureSize+1))
	if err != nil {
		return nil, fmt.Errorf("downloading skin: %w", err)
	}
	if len(data) > maxTextureSize {
		return nil, fmt.Errorf("skin texture larger than %s", humanize.IBytes(maxTextureSize))
	}
	f.logger.Debug("downloaded skin", "size", humanize.Bytes(uint64(len(data))))

	texture, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding skin: %w", err)
	}

	return EncodeHead(texture)
}

// EncodeHead crops the face from a skin texture and encodes it as PNG.
func EncodeHead(texture image.Image) ([]byte, error) {
	face, err := Face(texture)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, face); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Face returns the front of the head, the 8x8 square at (8,8) of a 64 wide
// texture, as a HeadSize square. High resolution textures are cropped at
// their own scale. Pixels stay sharp.
func Face(texture image.Image) (*image.RGBA, error) {
	b := texture.Bounds()
	if b.Dx() < 64 || b.Dy() < 32 {
		return nil, fmt.Errorf("skin texture too small: %dx%d", b.Dx(), b.Dy())
	}

	unit := b.Dx() / 64
	src := image.Rect(8*unit, 8*unit, 16*unit, 16*unit).Add(b.Min)

	face := image.NewRGBA(image.Rect(0, 0, HeadSize, HeadSize))
	draw.NearestNeighbor.Scale(face, face.Bounds(), texture, src, draw.Src, nil)
	return face, nil
}
