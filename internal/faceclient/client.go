package faceclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"staffattend/internal/apperrors"
	"staffattend/internal/metrics"
)

// FaceQuality contains face quality metrics.
type FaceQuality struct {
	Score     float64 `json:"score"`
	Blur      float64 `json:"blur"`
	PoseYaw   float64 `json:"pose_yaw"`
	PosePitch float64 `json:"pose_pitch"`
	PoseRoll  float64 `json:"pose_roll"`
	FaceSize  int     `json:"face_size"`
	IsFrontal bool    `json:"is_frontal"`
}

// EmbedResult contains the face embedding and detection confidence.
type EmbedResult struct {
	Embedding     []float32    `json:"embedding"`
	Score         float64      `json:"score"`
	FacesDetected int          `json:"faces_detected"`
	Quality       *FaceQuality `json:"quality,omitempty"`
}

// LivenessResult contains anti-spoofing check result.
type LivenessResult struct {
	IsLive     bool           `json:"is_live"`
	Confidence float64        `json:"confidence"`
	Checks     map[string]any `json:"checks,omitempty"`
}

// Client calls the face embedding service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Skip derives a deterministic embedding from the input instead of
	// calling the service. Used in development.
	Skip bool
	Dim  int
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool, dim int) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Skip:    skip,
		Dim:     dim,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// EmbedURL requests an embedding for an image URL.
func (c *Client) EmbedURL(ctx context.Context, imageURL string) (*EmbedResult, error) {
	if imageURL == "" {
		return nil, apperrors.Validation("image url required")
	}
	if c.Skip {
		return c.fake([]byte(imageURL)), nil
	}
	body, _ := json.Marshal(map[string]string{"image_url": imageURL})
	var out EmbedResult
	if err := c.do(ctx, "/embed", "application/json", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return checkEmbedding(&out)
}

// EmbedImage uploads raw image bytes and returns their embedding.
func (c *Client) EmbedImage(ctx context.Context, data []byte, filename string) (*EmbedResult, error) {
	if len(data) == 0 {
		return nil, apperrors.Validation("image is empty")
	}
	if c.Skip {
		return c.fake(data), nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var out EmbedResult
	if err := c.do(ctx, "/embed", w.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return checkEmbedding(&out)
}

func checkEmbedding(out *EmbedResult) (*EmbedResult, error) {
	if len(out.Embedding) == 0 {
		return nil, apperrors.New(apperrors.ErrNoFace, "no face detected in image")
	}
	return out, nil
}

// Liveness checks if the face image is from a live person.
func (c *Client) Liveness(ctx context.Context, imageURL string) (*LivenessResult, error) {
	if c.Skip {
		return &LivenessResult{IsLive: true, Confidence: 0.85, Checks: map[string]any{"mock": true}}, nil
	}
	body, _ := json.Marshal(map[string]string{"image_url": imageURL})
	var out LivenessResult
	if err := c.do(ctx, "/liveness", "application/json", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return apperrors.New(apperrors.ErrFaceServiceUnavailable, fmt.Sprintf("face service unavailable: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return apperrors.New(apperrors.ErrFaceServiceUnavailable, "face service unhealthy: "+resp.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	metrics.FaceServiceLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.New(apperrors.ErrFaceServiceUnavailable, fmt.Sprintf("face service request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperrors.New(apperrors.ErrFaceServiceUnavailable, fmt.Sprintf("face service error %s: %s", resp.Status, msg))
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return apperrors.Validation(fmt.Sprintf("face service rejected image (%s): %s", resp.Status, strings.TrimSpace(string(msg))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode face service response: %w", err)
	}
	return nil
}

// fake returns a unit-length embedding seeded from input, so the same
// image always embeds to the same vector.
func (c *Client) fake(input []byte) *EmbedResult {
	dim := c.Dim
	if dim <= 0 {
		dim = 128
	}
	emb := make([]float32, dim)
	seed := sha256.Sum256(input)
	block := seed[:]
	var norm float64
	for i := range emb {
		if i > 0 && i%8 == 0 {
			next := sha256.Sum256(block)
			block = next[:]
		}
		v := binary.BigEndian.Uint32(block[(i%8)*4:])
		f := float64(v)/math.MaxUint32*2 - 1
		emb[i] = float32(f)
		norm += f * f
	}
	norm = math.Sqrt(norm)
	for i := range emb {
		emb[i] = float32(float64(emb[i]) / norm)
	}
	return &EmbedResult{
		Embedding:     emb,
		Score:         0.95,
		FacesDetected: 1,
		Quality:       &FaceQuality{Score: 0.85, IsFrontal: true},
	}
}
