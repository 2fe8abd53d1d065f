// Package detector is a client for a landmark detection server. The server
// accepts a multipart image upload and returns the 68-point landmark set of
// every face it finds.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-align/internal/imageio"
	"github.com/kozaktomas/face-align/internal/landmark"
	"github.com/kozaktomas/face-align/internal/transform"
)

const (
	defaultURL      = "http://localhost:8000"
	landmarksPath   = "/landmarks"
	uploadQuality   = 95
	defaultTimeout  = 60 * time.Second
	maxResponseSize = 8 << 20
)

// ErrNoFace is returned when the server finds no face in the image.
var ErrNoFace = errors.New("no face detected")

// Client detects landmarks through the detection server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new detector client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// Face is one detected face.
type Face struct {
	BBox      []float64   `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64     `json:"det_score"`
	Landmarks [][]float64 `json:"landmarks"`
}

// Response is the detection server response.
type Response struct {
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
	Model      string `json:"model"`
}

// postImage uploads imageData as the multipart field "file".
func (c *Client) postImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// DetectFaces returns every face found in the encoded image.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) (*Response, error) {
	body, err := c.postImage(ctx, landmarksPath, imageData)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// Detect returns the landmark set of the most confident face in img.
// Coordinates are relative to img.Bounds().Min.
func (c *Client) Detect(ctx context.Context, img image.Image) (landmark.Set, error) {
	var buf bytes.Buffer
	if err := imageio.Encode(&buf, img, imageio.FormatJPEG, uploadQuality); err != nil {
		return nil, fmt.Errorf("encoding image for detection: %w", err)
	}

	resp, err := c.DetectFaces(ctx, buf.Bytes())
	if err != nil {
		return nil, err
	}
	face, ok := best(resp.Faces)
	if !ok {
		return nil, fmt.Errorf("%w: %w", landmark.ErrInvalidLandmarkSet, ErrNoFace)
	}

	set := make(landmark.Set, len(face.Landmarks))
	for i, pair := range face.Landmarks {
		if len(pair) != 2 {
			return nil, fmt.Errorf("%w: point %d has %d coordinates", landmark.ErrInvalidLandmarkSet, i, len(pair))
		}
		set[i] = transform.Pt(pair[0], pair[1])
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// best picks the face with the highest detection score.
func best(faces []Face) (Face, bool) {
	if len(faces) == 0 {
		return Face{}, false
	}
	top := faces[0]
	for _, f := range faces[1:] {
		if f.DetScore > top.DetScore {
			top = f
		}
	}
	return top, true
}
