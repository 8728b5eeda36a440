package extraction

import (
	"context"
	"errors"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// ChainExtractor tries each extractor in order and returns the first success.
type ChainExtractor struct {
	extractors []Extractor
	logger     *logging.Logger
}

func NewChainExtractor(logger *logging.Logger, extractors ...Extractor) *ChainExtractor {
	if len(extractors) == 0 {
		panic("extraction: chain needs at least one extractor")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ChainExtractor{extractors: extractors, logger: logger}
}

func (c *ChainExtractor) Extract(ctx context.Context, text string, prior qualification.Fields) (qualification.Extraction, error) {
	var errs []error
	for i, e := range c.extractors {
		out, err := e.Extract(ctx, text, prior)
		if err == nil {
			return out, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("extractor failed", "position", i, "error", err.Error())
	}
	return qualification.Extraction{}, errors.Join(append([]error{ErrExtractionFailed}, errs...)...)
}
