package workers

import (
	"context"

	"github.com/quoteforgelabs/quoteforge/internal/cad"
	jobdomain "github.com/quoteforgelabs/quoteforge/internal/job/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MeshDecimatePayload asks for a reduced preview mesh of parsed geometry.
type MeshDecimatePayload struct {
	FileID      string `json:"file_id"`
	GeometryURL string `json:"geometry_url"`
	// Quality selects the decimation preset; empty means "preview".
	Quality string `json:"quality,omitempty"`
}

type MeshDecimateParams struct {
	fx.In

	Log *zap.Logger
	CAD cad.Client
}

type MeshDecimateProcessor struct {
	log *zap.Logger
	cad cad.Client
}

func NewMeshDecimate(p MeshDecimateParams) *MeshDecimateProcessor {
	return &MeshDecimateProcessor{
		log: p.Log.Named("workers.mesh_decimate"),
		cad: p.CAD,
	}
}

func (w *MeshDecimateProcessor) Type() string { return jobdomain.TypeMeshDecimate }

func (w *MeshDecimateProcessor) Process(ctx context.Context, job *jobdomain.Job, rep jobdomain.Reporter) (any, error) {
	var payload MeshDecimatePayload
	if err := decodePayload(job, &payload); err != nil {
		return nil, err
	}
	if payload.GeometryURL == "" {
		return nil, jobdomain.NewError(jobdomain.KindValidation, "geometry_url is required")
	}
	quality := payload.Quality
	if quality == "" {
		quality = "preview"
	}

	rep.Progress(ctx, 20, "decimating mesh", map[string]any{"quality": quality})
	mesh, err := w.cad.Decimate(ctx, payload.GeometryURL, quality, job.TraceID)
	if err != nil {
		return nil, classifyCAD("decimate mesh", err)
	}

	w.log.Info("decimated mesh",
		zap.String("file_id", payload.FileID),
		zap.String("quality", quality),
		zap.Int("triangle_count", mesh.TriangleCount))
	rep.Progress(ctx, 100, "decimation complete", nil)
	return mesh, nil
}
