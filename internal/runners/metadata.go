package runners

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/vantrace/ferret-cli/api/schemas"
)

// XMP packets are embedded verbatim inside most image and document formats,
// delimited by the xmpmeta element.
var (
	xmpOpen  = []byte("<x:xmpmeta")
	xmpClose = []byte("</x:xmpmeta>")
)

// MetadataExtractor reads local target files and extracts embedded metadata:
// filesystem attributes always, plus any XMP packet found in the raw bytes.
type MetadataExtractor struct {
	logger *zap.Logger

	// maxReadBytes bounds how much of each file is scanned for XMP.
	maxReadBytes int64
}

// NewMetadataExtractor creates the metadata-extraction runner.
func NewMetadataExtractor(logger *zap.Logger) *MetadataExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataExtractor{
		logger:       logger.Named("metadata_extractor"),
		maxReadBytes: 8 << 20,
	}
}

// Kind implements schemas.StageRunner.
func (e *MetadataExtractor) Kind() schemas.PipelineKind {
	return schemas.KindMetadataExtraction
}

// Run extracts metadata from every target that names a local file. Unreadable
// files are recorded as per-target errors and the stage degrades to partial;
// the stage itself fails only when no target could be processed at all.
func (e *MetadataExtractor) Run(ctx context.Context, targets []string) (*schemas.StageResult, error) {
	start := time.Now()
	result := &schemas.StageResult{
		Status:  schemas.StageSuccess,
		Sources: []string{"filesystem", "xmp"},
	}

	candidates := filePathTargets(targets)
	if len(candidates) == 0 {
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		return result, nil
	}

	for _, target := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := e.extractOne(target)
		if err != nil {
			e.logger.Debug("target unreadable", zap.String("target", target), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", target, err))
			continue
		}
		result.Items = append(result.Items, item)
	}

	switch {
	case len(result.Items) == 0:
		return nil, fmt.Errorf("no readable targets among %d candidates: %s",
			len(candidates), strings.Join(result.Errors, "; "))
	case len(result.Errors) > 0:
		result.Status = schemas.StagePartial
		result.Confidence = 0.5
	default:
		result.Confidence = 0.85
	}
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result, nil
}

func (e *MetadataExtractor) extractOne(path string) (json.RawMessage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	entry := map[string]any{
		"path":       path,
		"sizeBytes":  info.Size(),
		"modifiedAt": info.ModTime().UTC().Format(time.RFC3339),
		"extension":  strings.ToLower(filepath.Ext(path)),
	}

	if info.Size() <= e.maxReadBytes {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if fields := extractXMP(raw); len(fields) > 0 {
			entry["xmp"] = fields
		}
	}
	return json.Marshal(entry)
}

// extractXMP locates an embedded XMP packet and flattens the rdf:Description
// attributes and simple child elements into a field map. A malformed packet
// yields nil rather than an error; embedded metadata is best effort.
func extractXMP(raw []byte) map[string]string {
	open := bytes.Index(raw, xmpOpen)
	if open < 0 {
		return nil
	}
	end := bytes.Index(raw[open:], xmpClose)
	if end < 0 {
		return nil
	}
	packet := raw[open : open+end+len(xmpClose)]

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(packet); err != nil {
		return nil
	}

	fields := make(map[string]string)
	collectDescriptions(doc.Root(), fields)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// collectDescriptions walks the packet tree and flattens every Description
// element's attributes and simple children.
func collectDescriptions(el *etree.Element, fields map[string]string) {
	if el == nil {
		return
	}
	if el.Tag == "Description" {
		for _, attr := range el.Attr {
			if attr.Space == "xmlns" || attr.Key == "about" {
				continue
			}
			fields[attr.FullKey()] = attr.Value
		}
		for _, child := range el.ChildElements() {
			if text := strings.TrimSpace(child.Text()); text != "" {
				fields[child.FullTag()] = text
			}
		}
	}
	for _, child := range el.ChildElements() {
		collectDescriptions(child, fields)
	}
}

// mediaExtensions are the file types worth scanning for embedded metadata.
var mediaExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".tiff": true,
	".webp": true, ".heic": true, ".mp4": true, ".mov": true, ".avi": true,
	".pdf": true, ".docx": true, ".xlsx": true, ".svg": true, ".xmp": true,
}

// filePathTargets keeps the targets that plausibly name local media files.
// URLs, identities and bare network addresses are other runners' business.
func filePathTargets(targets []string) []string {
	var out []string
	for _, t := range targets {
		if strings.Contains(t, "://") || strings.Contains(t, "@") || net.ParseIP(t) != nil {
			continue
		}
		if mediaExtensions[strings.ToLower(filepath.Ext(t))] {
			out = append(out, t)
		}
	}
	return out
}
