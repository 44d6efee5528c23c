// Package query turns free-text investigation requests into structured
// queries. Parsing is total: any input, including the empty string, yields a
// usable query with at least one target and a non-empty pipeline selection.
package query

import (
	"net"
	"regexp"
	"strings"

	"github.com/vantrace/ferret-cli/api/schemas"
)

// SentinelTarget aliases the contract-level fallback subject.
const SentinelTarget = schemas.SentinelTarget

var (
	emailPattern  = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	domainPattern = regexp.MustCompile(`^([A-Za-z0-9\-]+\.)+[A-Za-z]{2,}$`)
	handlePattern = regexp.MustCompile(`^@[A-Za-z0-9._\-]{2,}$`)
)

// fileExtensions covers the artifact types the analysis stages understand.
var fileExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {},
	".tif": {}, ".tiff": {}, ".heic": {},
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".webm": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
}

// kindKeywords maps query words to the stage they select. Target-shaped
// tokens are classified before keyword matching, so a path like
// "images/photo.jpg" never triggers a keyword.
var kindKeywords = map[string]schemas.PipelineKind{
	"alias":     schemas.KindAliasMapping,
	"aliases":   schemas.KindAliasMapping,
	"username":  schemas.KindAliasMapping,
	"usernames": schemas.KindAliasMapping,
	"handle":    schemas.KindAliasMapping,
	"handles":   schemas.KindAliasMapping,

	"metadata": schemas.KindMetadataExtraction,
	"exif":     schemas.KindMetadataExtraction,
	"xmp":      schemas.KindMetadataExtraction,

	"face":   schemas.KindImageFaceAnalysis,
	"faces":  schemas.KindImageFaceAnalysis,
	"facial": schemas.KindImageFaceAnalysis,

	"geo":       schemas.KindGeoIPLookup,
	"geoip":     schemas.KindGeoIPLookup,
	"geolocate": schemas.KindGeoIPLookup,
	"location":  schemas.KindGeoIPLookup,
	"ip":        schemas.KindGeoIPLookup,
	"ips":       schemas.KindGeoIPLookup,

	"deepfake":    schemas.KindDeepfakeDetection,
	"deepfakes":   schemas.KindDeepfakeDetection,
	"synthetic":   schemas.KindDeepfakeDetection,
	"manipulated": schemas.KindDeepfakeDetection,
}

// priorityKeywords raise the investigation priority when present.
var priorityKeywords = map[string]struct{}{
	"urgent": {}, "asap": {}, "immediately": {}, "critical": {},
}

// reviewKeywords request a human-review hold on the results.
var reviewKeywords = map[string]struct{}{
	"review": {}, "verify": {}, "confirm": {},
}

// Parse converts free text into a StructuredQuery. It never fails: when no
// target-shaped token is found it falls back to the sentinel target, and when
// no stage keyword matches it selects the full pipeline set.
func Parse(text string) schemas.StructuredQuery {
	q := schemas.StructuredQuery{
		RawText: text,
		Options: schemas.QueryOptions{Priority: schemas.PriorityMedium},
	}

	seenTargets := make(map[string]struct{})
	seenKinds := make(map[schemas.PipelineKind]struct{})

	for _, token := range strings.Fields(text) {
		trimmed := strings.Trim(token, ".,;:!?()[]{}\"'")
		if trimmed == "" {
			continue
		}

		if isTarget(trimmed) {
			if _, dup := seenTargets[trimmed]; !dup {
				seenTargets[trimmed] = struct{}{}
				q.Targets = append(q.Targets, trimmed)
			}
			continue
		}

		word := strings.ToLower(trimmed)
		if kind, ok := kindKeywords[word]; ok {
			seenKinds[kind] = struct{}{}
			continue
		}
		if _, ok := priorityKeywords[word]; ok {
			q.Options.Priority = schemas.PriorityHigh
		}
		if _, ok := reviewKeywords[word]; ok {
			q.Options.HumanReview = true
		}
	}

	if len(q.Targets) == 0 {
		q.Targets = []string{SentinelTarget}
	}

	// Kinds always come out in canonical execution order, regardless of the
	// order keywords appeared in the text.
	for _, kind := range schemas.AllPipelineKinds() {
		if _, ok := seenKinds[kind]; ok {
			q.PipelineKinds = append(q.PipelineKinds, kind)
		}
	}
	if len(q.PipelineKinds) == 0 {
		q.PipelineKinds = schemas.AllPipelineKinds()
	}

	return q
}

// isTarget classifies a token as an investigation subject rather than plain
// query language.
func isTarget(token string) bool {
	if emailPattern.MatchString(token) {
		return true
	}
	if strings.Contains(token, "://") || strings.HasPrefix(token, "www.") {
		return true
	}
	if net.ParseIP(token) != nil {
		return true
	}
	if handlePattern.MatchString(token) {
		return true
	}
	// Anything path-shaped, or a bare filename with a recognized extension.
	if strings.ContainsAny(token, `/\`) {
		return true
	}
	if idx := strings.LastIndex(token, "."); idx > 0 {
		if _, ok := fileExtensions[strings.ToLower(token[idx:])]; ok {
			return true
		}
	}
	return domainPattern.MatchString(token)
}
