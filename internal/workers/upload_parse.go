package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quoteforgelabs/quoteforge/internal/cad"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// geometryTTL bounds how long parsed geometry stays cached. Pricing jobs
// submitted later than this re-run the parse.
const geometryTTL = 24 * time.Hour

func geometryKey(fileID string) string {
	return fmt.Sprintf("cad:geometry:%s", fileID)
}

// UploadParsePayload describes one uploaded CAD file to parse.
type UploadParsePayload struct {
	FileID   string `json:"file_id"`
	FileURL  string `json:"file_url"`
	Filename string `json:"filename,omitempty"`
	Mime     string `json:"mime,omitempty"`
	// ExpectedHash is the hex SHA-256 recorded at upload time. A mismatch
	// after download aborts the job terminally.
	ExpectedHash string `json:"expected_hash,omitempty"`
}

type UploadParseResult struct {
	FileID   string           `json:"file_id"`
	Geometry *cad.ParseResult `json:"geometry"`
}

type UploadParseParams struct {
	fx.In

	Log   *zap.Logger
	Redis *redis.Client
	CAD   cad.Client
}

// UploadParseProcessor downloads an uploaded file, verifies its hash,
// extracts geometry through the CAD service, and caches the result for the
// pricing pipeline.
type UploadParseProcessor struct {
	log *zap.Logger
	rdb *redis.Client
	cad cad.Client
}

func NewUploadParse(p UploadParseParams) *UploadParseProcessor {
	return &UploadParseProcessor{
		log: p.Log.Named("workers.upload_parse"),
		rdb: p.Redis,
		cad: p.CAD,
	}
}

func (w *UploadParseProcessor) Type() string { return jobdomain.TypeUploadParse }

func (w *UploadParseProcessor) Process(ctx context.Context, job *jobdomain.Job, rep jobdomain.Reporter) (any, error) {
	var payload UploadParsePayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.FileID == "" || payload.FileURL == "" {
		return nil, jobdomain.NewError(jobdomain.KindValidation, "file_id and file_url are required")
	}

	rep.Progress(ctx, 10, "downloading file", map[string]any{"stage": "download"})
	data, err := w.cad.Download(ctx, payload.FileURL)
	if err != nil {
		return nil, classifyCAD("download file", err)
	}
	if payload.ExpectedHash != "" {
		if err := cad.VerifyHash(data, payload.ExpectedHash); err != nil {
			return nil, classifyCAD("verify file hash", err)
		}
	}
	if err := rep.Checkpoint(ctx); err != nil {
		return nil, err
	}

	rep.Progress(ctx, 30, "parsing geometry", map[string]any{"stage": "parse"})
	parsed, err := w.cad.Parse(ctx, data, payload.Filename, payload.Mime, job.TraceID)
	if err != nil {
		return nil, classifyCAD("parse geometry", err)
	}
	if err := rep.Checkpoint(ctx); err != nil {
		return nil, err
	}

	rep.Progress(ctx, 70, "storing parsed geometry", map[string]any{"stage": "store"})
	raw, err := json.Marshal(parsed)
	if err != nil {
		return nil, jobdomain.WrapError(jobdomain.KindInternal, "marshal geometry", err)
	}
	if err := w.rdb.Set(ctx, geometryKey(payload.FileID), raw, geometryTTL).Err(); err != nil {
		return nil, jobdomain.WrapError(jobdomain.KindTransient, "store geometry", err)
	}

	w.log.Info("parsed upload",
		zap.String("file_id", payload.FileID),
		zap.Int("part_count", parsed.PartCount),
		zap.Float64("volume_cc", parsed.VolumeCC))
	rep.Progress(ctx, 100, "parse complete", map[string]any{"stage": "done"})
	return &UploadParseResult{FileID: payload.FileID, Geometry: parsed}, nil
}

// LoadGeometry fetches a previously parsed file's geometry from the cache.
// Returns nil when the entry has expired or was never written.
func LoadGeometry(ctx context.Context, rdb *redis.Client, fileID string) (*cad.ParseResult, error) {
	raw, err := rdb.Get(ctx, geometryKey(fileID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var parsed cad.ParseResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}
