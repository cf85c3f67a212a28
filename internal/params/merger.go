package params

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	ierrors "github.com/savaki/cfn-actions/internal/errors"
	"github.com/savaki/cfn-actions/internal/models"
	"github.com/savaki/cfn-actions/internal/secrets"
	"github.com/savaki/cfn-actions/internal/utils"
)

// Merger combines file and inline parameters, inline winning by key
type Merger struct {
	Secrets secrets.Map
}

// Merge resolves secret placeholders in both sources and overlays the inline
// parameters on the file parameters. File order is kept; inline keys not in
// the file are appended in inline order. Unparseable inline JSON is only an
// error when the file contributed nothing.
func (m Merger) Merge(ctx context.Context, file *Source, inline string) ([]models.Parameter, error) {
	logger := zerolog.Ctx(ctx)

	base := m.resolve(ctx, file.Parameters())
	if file != nil {
		logger.Info().Int("count", len(base)).Msg("Parameters loaded from file")
	}

	inline = strings.TrimSpace(inline)
	if inline == "" || inline == "null" {
		return base, nil
	}

	logger.Info().Msg("inline-json-parameters are available")

	overrides, err := ParseSource([]byte(inline))
	if err != nil {
		logger.Error().Err(err).Msg("Error parsing inline JSON parameters")
		if len(base) == 0 {
			return nil, fmt.Errorf("%w: %v", ierrors.ErrInlineParameters, err)
		}
		return base, nil
	}

	merged := utils.MergeByKey(base, m.resolve(ctx, overrides.Parameters()), models.Parameter.Key)
	logger.Info().
		Int("file", len(base)).
		Int("inline", overrides.Len()).
		Int("merged", len(merged)).
		Msg("Merged parameters")

	return merged, nil
}

func (m Merger) resolve(ctx context.Context, pp []models.Parameter) []models.Parameter {
	for i := range pp {
		pp[i].ParameterValue = m.Secrets.Resolve(ctx, pp[i].ParameterValue)
	}
	return pp
}
