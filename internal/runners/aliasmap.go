package runners

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vantrace/ferret-cli/api/schemas"
)

// aliasPlatforms are the services candidate handles are projected onto.
var aliasPlatforms = []string{"github", "x", "reddit", "mastodon", "telegram"}

// AliasMapper derives candidate handles for a single subject identity. It is
// the only built-in runner with the single-subject signature: mapping aliases
// for a list of unrelated identities at once would conflate subjects.
type AliasMapper struct {
	logger *zap.Logger
}

// NewAliasMapper creates the alias-mapping runner.
func NewAliasMapper(logger *zap.Logger) *AliasMapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AliasMapper{logger: logger.Named("alias_mapper")}
}

// Kind implements schemas.IdentityRunner.
func (m *AliasMapper) Kind() schemas.PipelineKind {
	return schemas.KindAliasMapping
}

// RunIdentity maps the identity to candidate aliases across known platforms.
// The sentinel subject yields an empty, zero-confidence success rather than a
// failure: an unconstrained query is valid, it just has nothing to map.
func (m *AliasMapper) RunIdentity(ctx context.Context, identity string) (*schemas.StageResult, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &schemas.StageResult{
		Status:  schemas.StageSuccess,
		Sources: []string{"alias-heuristics"},
	}

	base := baseHandle(identity)
	if base == "" || identity == schemas.SentinelTarget {
		m.logger.Debug("no mappable identity in query", zap.String("identity", identity))
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		return result, nil
	}

	for _, variant := range handleVariants(base) {
		for _, platform := range aliasPlatforms {
			item, err := json.Marshal(map[string]any{
				"platform":   platform,
				"handle":     variant,
				"profileUrl": fmt.Sprintf("https://%s.example/%s", platform, variant),
				"derived":    variant != base,
			})
			if err != nil {
				return nil, fmt.Errorf("encoding alias candidate: %w", err)
			}
			result.Items = append(result.Items, item)
		}
	}

	// Exact-handle candidates are worth more than mutated ones.
	result.Confidence = 0.55
	if strings.Contains(identity, "@") {
		result.Confidence = 0.7
	}
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	m.logger.Debug("alias mapping done",
		zap.String("base", base),
		zap.Int("candidates", len(result.Items)))
	return result, nil
}

// baseHandle normalizes an identity down to a bare handle. Email local parts
// and @-prefixed handles both reduce to the naked name.
func baseHandle(identity string) string {
	s := strings.TrimSpace(strings.ToLower(identity))
	s = strings.TrimPrefix(s, "@")
	if at := strings.Index(s, "@"); at > 0 {
		s = s[:at]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// handleVariants generates the common mutations people use to dodge handle
// collisions. The original handle always comes first.
func handleVariants(base string) []string {
	variants := []string{base}
	if flat := strings.NewReplacer(".", "", "-", "", "_", "").Replace(base); flat != base && flat != "" {
		variants = append(variants, flat)
	}
	variants = append(variants,
		base+"_",
		"real"+base,
		base+"01",
	)
	return variants
}
