// Package cad wraps the external CAD/geometry service. The service is
// untrusted I/O: every call carries a bounded timeout, and downloaded file
// content is hash-verified before use.
package cad

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quoteforgelabs/quoteforge/internal/config"
	"go.uber.org/zap"
)

const (
	downloadTimeout = 60 * time.Second
	parseTimeout    = 120 * time.Second
	meshTimeout     = 180 * time.Second

	maxFileBytes = 100 << 20
)

// ErrHashMismatch means downloaded content does not match the hash recorded
// at upload time. Fatal: the job must abort, never proceed on bad bytes.
var ErrHashMismatch = errors.New("file hash mismatch")

// StatusError is a non-2xx response from the CAD service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cad service returned %d: %s", e.Code, e.Body)
}

// Temporary reports whether the failure class is worth retrying.
func (e *StatusError) Temporary() bool { return e.Code >= 500 }

type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ParseResult is the geometry extraction for one file.
type ParseResult struct {
	BoundingBox    *BoundingBox   `json:"bounding_box,omitempty"`
	PartCount      int            `json:"part_count,omitempty"`
	Material       string         `json:"material,omitempty"`
	GeometryURL    string         `json:"geometry_url,omitempty"`
	VolumeCC       float64        `json:"volume_cc,omitempty"`
	SurfaceAreaCM2 float64        `json:"surface_area_cm2,omitempty"`
	Features       map[string]int `json:"features,omitempty"`
	RiskFlags      []string       `json:"risk_flags,omitempty"`
}

// DecimateResult describes a reduced preview mesh.
type DecimateResult struct {
	MeshURL       string `json:"mesh_url"`
	TriangleCount int    `json:"triangle_count"`
	Quality       string `json:"quality"`
}

type Client interface {
	Download(ctx context.Context, url string) ([]byte, error)
	Parse(ctx context.Context, file []byte, filename, mime, traceID string) (*ParseResult, error)
	Decimate(ctx context.Context, geometryURL, quality, traceID string) (*DecimateResult, error)
}

// VerifyHash checks content against the expected hex SHA-256 digest.
// Hex case carries no information, so the comparison folds it.
func VerifyHash(data []byte, expected string) error {
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, expected) {
		return fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, expected, got)
	}
	return nil
}

type httpClient struct {
	base string
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) Client {
	return &httpClient{
		base: cfg.CADServiceURL,
		http: &http.Client{},
		log:  log.Named("cad.client"),
	}
}

func (c *httpClient) Download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFileBytes))
}

func (c *httpClient) Parse(ctx context.Context, file []byte, filename, mime, traceID string) (*ParseResult, error) {
	ctx, cancel := context.WithTimeout(ctx, parseTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/parse", bytes.NewReader(file))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mime)
	req.Header.Set("X-Filename", filename)
	if traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}
	var result ParseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode parse response: %w", err)
	}
	return &result, nil
}

func (c *httpClient) Decimate(ctx context.Context, geometryURL, quality, traceID string) (*DecimateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, meshTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"geometry_url": geometryURL,
		"quality":      quality,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/decimate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}
	var result DecimateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode decimate response: %w", err)
	}
	return &result, nil
}

func (c *httpClient) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	c.log.Warn("cad service error", zap.Int("status", err.Code), zap.String("body", err.Body))
	return err
}
