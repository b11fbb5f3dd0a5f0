package photos

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/gibbonas/MemAgent/internal/observability"
)

const (
	// referenceFetchDim is the size hint appended to base URLs; the photo
	// service requires explicit dimensions on media file URLs.
	referenceFetchDim = 1024

	// maxReferenceBytes guards against oversized downloads.
	maxReferenceBytes = 16 << 20
)

// FetchReferenceBytes downloads the selected reference images. Each image is
// validated as decodable and downscaled to referenceFetchDim on its longest
// side before being handed to the generation service. Individual failures
// degrade with a logged warning; the returned slice may be shorter than urls.
func (c *Client) FetchReferenceBytes(ctx context.Context, urls []string, max int) [][]byte {
	log := observability.LoggerFromContext(ctx)
	if len(urls) > max {
		urls = urls[:max]
	}
	out := make([][]byte, 0, len(urls))
	for _, url := range urls {
		data, err := c.fetchOne(ctx, url)
		if err != nil {
			log.Warn("reference image fetch degraded", "url", preview(url, 80), "error", err)
			continue
		}
		prepared, err := prepareReferenceImage(data, referenceFetchDim)
		if err != nil {
			log.Warn("reference image unusable", "url", preview(url, 80), "error", err)
			continue
		}
		out = append(out, prepared)
	}
	return out
}

func (c *Client) fetchOne(ctx context.Context, url string) ([]byte, error) {
	// Media file URLs need explicit dimensions appended.
	fetchURL := url
	if !strings.Contains(url, "=") {
		fetchURL = fmt.Sprintf("%s=w%d-h%d", strings.TrimRight(url, "/"), referenceFetchDim, referenceFetchDim)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes))
}

// prepareReferenceImage decodes data (jpeg/png/gif/webp) and, when the longest
// side exceeds maxDim, downscales it, re-encoding as JPEG. Already-small
// images pass through untouched.
func prepareReferenceImage(data []byte, maxDim int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid image bounds: %dx%d", w, h)
	}
	maxSide := w
	if h > maxSide {
		maxSide = h
	}
	if maxDim <= 0 || maxSide <= maxDim {
		return data, nil
	}

	scale := float64(maxDim) / float64(maxSide)
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
