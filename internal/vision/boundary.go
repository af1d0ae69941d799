package vision

import (
	"context"
	"errors"
	"net"
	"time"

	"foodbridge/internal/domain"
	"foodbridge/internal/logger"
	"foodbridge/internal/netwatch"
)

// boundary runs one generator call and maps failures onto the pipeline
// error taxonomy.
type boundary struct {
	gen     Generator
	net     netwatch.Status
	timeout time.Duration
	log     *logger.Logger
	name    string
}

func (b boundary) generate(ctx context.Context, req Request) (string, error) {
	if b.net != nil && !b.net.Online() {
		return "", domain.NewPipelineError(domain.KindNoConnectivity, "No Internet Connection", nil)
	}
	if b.gen == nil {
		return "", domain.NewPipelineError(domain.KindConfiguration, "AI provider is not configured", nil)
	}
	timeout := b.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	text, err := b.gen.Generate(ctx, req)
	if err == nil {
		return text, nil
	}
	b.log.Error("%s: %v", b.name, err)
	var ne net.Error
	switch {
	case errors.Is(err, ErrMissingAPIKey):
		return "", domain.NewPipelineError(domain.KindConfiguration, "API Configuration Error: missing AI API key", err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return "", domain.NewPipelineError(domain.KindTimeout, "The AI service did not answer in time", err)
	case errors.Is(err, context.Canceled):
		return "", domain.NewPipelineError(domain.KindRemote, "Request canceled", err)
	}
	return "", domain.NewPipelineError(domain.KindRemote, "AI Error: "+err.Error(), err)
}

func (b boundary) malformed(err error, raw string) error {
	b.log.Error("%s: malformed response: %v\nraw response: %s", b.name, err, raw)
	return domain.NewPipelineError(domain.KindMalformedResponse, "Failed to parse AI response. Please try again.", err)
}
