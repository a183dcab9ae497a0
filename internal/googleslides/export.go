package googleslides

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/smorand/slides-mirror/internal/retry"
)

const maxThumbnailBytes = 32 << 20

// fetch downloads a thumbnail. Non-200 answers come back as *retry.HTTPError
// so the retryer can classify them.
func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("empty thumbnail URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch thumbnail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read thumbnail: %w", err)
	}
	return data, nil
}

// toJPEG re-encodes data as JPEG unless it already is one.
func toJPEG(data []byte, quality int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode thumbnail: %w", err)
	}
	if format == "jpeg" {
		return data, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
