package matrix

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// SelectEnvironments filters declared against an optional allow-list. An
// empty filter keeps everything; a comma separated filter keeps every
// declared name matching one of its entries exactly; any other filter keeps
// only that one name. Declared order is preserved.
func SelectEnvironments(ctx context.Context, declared []string, filter string) []string {
	logger := zerolog.Ctx(ctx)

	filter = strings.TrimSpace(filter)
	if filter == "" {
		return declared
	}

	if !strings.Contains(filter, ",") {
		for _, env := range declared {
			if env == filter {
				return []string{env}
			}
		}
		logger.Warn().Str("environment", filter).Msg("Specified environment not found")
		return nil
	}

	var names []string
	for _, name := range strings.Split(filter, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, regexp.QuoteMeta(name))
		}
	}
	if len(names) == 0 {
		logger.Warn().Str("filter", filter).Msg("None of the specified environments found")
		return nil
	}

	pattern := regexp.MustCompile("^(" + strings.Join(names, "|") + ")$")
	logger.Debug().Str("pattern", pattern.String()).Msg("Environment regex pattern")

	var selected []string
	for _, env := range declared {
		if pattern.MatchString(env) {
			selected = append(selected, env)
		}
	}

	if len(selected) == 0 {
		logger.Warn().Str("filter", filter).Msg("None of the specified environments found")
	}
	return selected
}
