package integration

import (
	"context"
	"fmt"

	"github.com/RubachokBoss/thesis-service/internal/config"
	"github.com/RubachokBoss/thesis-service/internal/models"
	"github.com/rs/zerolog"
)

const TargetPDFA = "pdf/a-2b"

type ConversionJob struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ConversionClient submits documents to the PDF/A conversion service. The
// service works asynchronously; only the job acceptance is awaited.
type ConversionClient interface {
	Submit(ctx context.Context, req *models.ConversionRequest) (*ConversionJob, error)
}

type conversionClient struct {
	http   *retryingClient
	logger zerolog.Logger
}

func NewConversionClient(cfg config.ServiceConfig, logger zerolog.Logger) ConversionClient {
	return &conversionClient{
		http:   newRetryingClient(cfg, logger),
		logger: logger,
	}
}

func (c *conversionClient) Submit(ctx context.Context, req *models.ConversionRequest) (*ConversionJob, error) {
	if req.Target == "" {
		req.Target = TargetPDFA
	}

	var job ConversionJob
	if err := c.http.postJSON(ctx, req, &job); err != nil {
		return nil, fmt.Errorf("failed to submit conversion: %w", err)
	}

	c.logger.Info().
		Str("thesis_id", req.ThesisID).
		Str("object_key", req.ObjectKey).
		Str("job_id", job.JobID).
		Msg("Conversion submitted")

	return &job, nil
}
