package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-po/internal/inventory"
)

// Legacy export kinds accepted by import-legacy.
const (
	KindVariants = "variants"
	KindRestock  = "restock"
)

// Importer persists decoded legacy records.
type Importer interface {
	ImportVariant(ctx context.Context, v inventory.Variant) error
	ImportRestockRequest(ctx context.Context, r inventory.RestockingRequest) error
}

// LegacyImportCLI loads exported documents of the previous inventory store.
type LegacyImportCLI struct {
	importer Importer
}

// NewLegacyImportCLI constructs the import helper.
func NewLegacyImportCLI(importer Importer) (*LegacyImportCLI, error) {
	if importer == nil {
		return nil, errors.New("import cli: importer required")
	}
	return &LegacyImportCLI{importer: importer}, nil
}

// ImportOptions defines flags for the import-legacy command.
type ImportOptions struct {
	Path       string
	Kind       string
	DryRun     bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ImportSummary is the JSON output of import-legacy.
type ImportSummary struct {
	Kind     string        `json:"kind"`
	DryRun   bool          `json:"dry_run"`
	Total    int           `json:"total"`
	Imported int           `json:"imported"`
	Failed   int           `json:"failed"`
	Errors   []ImportError `json:"errors"`
}

// ImportError reports a document that could not be imported.
type ImportError struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

// ImportCommand decodes every document of the export file and writes it
// through the inventory service. Exit code 10 means some documents failed.
func (c *LegacyImportCLI) ImportCommand(ctx context.Context, opts ImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	kind := strings.ToLower(strings.TrimSpace(opts.Kind))
	if kind != KindVariants && kind != KindRestock {
		_, _ = fmt.Fprintf(opts.Stderr, "import-legacy: unknown kind %q (expected variants or restock)\n", opts.Kind)
		return 1
	}
	if opts.Path == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "import-legacy: --file is required")
		return 1
	}
	docs, err := readDocuments(opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "import-legacy: %v\n", err)
		return 1
	}

	summary := ImportSummary{Kind: kind, DryRun: opts.DryRun, Total: len(docs), Errors: []ImportError{}}
	for i, doc := range docs {
		id, err := c.importOne(ctx, kind, doc, opts.DryRun)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, ImportError{Index: i, ID: id, Error: err.Error()})
			continue
		}
		summary.Imported++
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "import-legacy: encode json: %v\n", err)
			return 1
		}
	} else {
		renderImportHuman(opts.Stdout, summary)
	}
	if summary.Failed > 0 {
		return 10
	}
	return 0
}

func (c *LegacyImportCLI) importOne(ctx context.Context, kind string, doc map[string]any, dryRun bool) (string, error) {
	switch kind {
	case KindVariants:
		v, err := inventory.DecodeVariantDocument(doc)
		if err != nil {
			return "", err
		}
		if dryRun {
			return v.ID, nil
		}
		return v.ID, c.importer.ImportVariant(ctx, v)
	default:
		r, err := inventory.DecodeRestockDocument(doc)
		if err != nil {
			return "", err
		}
		if dryRun {
			return r.ID, nil
		}
		return r.ID, c.importer.ImportRestockRequest(ctx, r)
	}
}

// readDocuments accepts a JSON or YAML array of documents, or an object keyed
// by document id as produced by collection exports.
func readDocuments(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var parsed any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &parsed)
	default:
		err = json.Unmarshal(raw, &parsed)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	switch v := parsed.(type) {
	case []any:
		docs := make([]map[string]any, 0, len(v))
		for i, item := range v {
			doc, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("document %d is not an object", i)
			}
			docs = append(docs, doc)
		}
		return docs, nil
	case map[string]any:
		docs := make([]map[string]any, 0, len(v))
		for _, key := range sortedKeys(v) {
			doc, ok := v[key].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("document %s is not an object", key)
			}
			if _, has := doc["id"]; !has {
				doc["id"] = key
			}
			docs = append(docs, doc)
		}
		return docs, nil
	default:
		return nil, errors.New("expected an array or object of documents")
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func renderImportHuman(out io.Writer, s ImportSummary) {
	mode := ""
	if s.DryRun {
		mode = " (dry run)"
	}
	_, _ = fmt.Fprintf(out, "Legacy %s import%s: %d of %d document(s) imported\n", s.Kind, mode, s.Imported, s.Total)
	for _, e := range s.Errors {
		label := fmt.Sprintf("#%d", e.Index)
		if e.ID != "" {
			label += " " + e.ID
		}
		_, _ = fmt.Fprintf(out, " - %s: %s\n", label, e.Error)
	}
}
