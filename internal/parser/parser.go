// Package parser extracts metadata and body from content files: Markdown with
// a leading YAML front matter block, or JSON documents holding data only.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/quarry/internal/models"
)

// DefaultSlugField is the metadata key read as the declared identifier.
const DefaultSlugField = "slug"

// ErrUnsupported is returned for files whose extension has no parser.
var ErrUnsupported = errors.New("unsupported content type")

// Options configures Parse.
type Options struct {
	SlugField string
}

// Result holds the output of parsing one content file.
type Result struct {
	// DeclaredID is the trimmed string under the slug field, or empty.
	DeclaredID string
	Metadata   models.Metadata
	// Body is nil for pure-data content.
	Body *string
}

// Supported reports whether name has an extension Parse understands.
func Supported(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown", ".json":
		return true
	}
	return false
}

// Parse dispatches on the file extension of name.
func Parse(name string, data []byte, opts Options) (*Result, error) {
	if opts.SlugField == "" {
		opts.SlugField = DefaultSlugField
	}

	var (
		res *Result
		err error
	)
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		res, err = parseMarkdown(data)
	case ".json":
		res, err = parseJSON(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path.Ext(name))
	}
	if err != nil {
		return nil, err
	}

	if v, ok := res.Metadata.Get(opts.SlugField); ok {
		if s, ok := v.(string); ok {
			res.DeclaredID = strings.TrimSpace(s)
		}
	}
	return res, nil
}

func parseMarkdown(data []byte) (*Result, error) {
	block, body, found, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	res := &Result{Body: &body}
	if !found {
		return res, nil
	}
	meta, err := decodeYAMLMapping(block)
	if err != nil {
		return nil, fmt.Errorf("front matter: %w", err)
	}
	res.Metadata = meta
	return res, nil
}

// splitFrontmatter separates YAML front matter (between leading --- lines)
// from the Markdown body. Content without a leading delimiter is all body.
func splitFrontmatter(data []byte) ([]byte, string, bool, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	trimmed = bytes.TrimPrefix(trimmed, []byte("\xef\xbb\xbf"))

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), false, nil
	}

	rest := trimmed[len(delim):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		// "---something" on the first line is a thematic break, not front matter.
		return nil, string(data), false, nil
	}
	rest = rest[nl+1:]

	var block []byte
	if bytes.HasPrefix(rest, []byte(delim)) {
		block, rest = nil, rest[len(delim):]
	} else {
		idx := bytes.Index(rest, []byte("\n"+delim))
		if idx < 0 {
			return nil, "", false, errors.New("front matter: missing closing ---")
		}
		block, rest = rest[:idx], rest[idx+1+len(delim):]
	}

	// Body starts after the closing delimiter line.
	body := strings.TrimLeft(string(rest), "\n\r")
	return block, body, true, nil
}

func decodeYAMLMapping(block []byte) (models.Metadata, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(block, &doc); err != nil {
		return models.Metadata{}, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return models.Metadata{}, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return models.Metadata{}, nil
	}
	if root.Kind != yaml.MappingNode {
		return models.Metadata{}, fmt.Errorf("line %d: expected a mapping", root.Line)
	}

	var meta models.Metadata
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return models.Metadata{}, fmt.Errorf("line %d: keys must be scalars", key.Line)
		}
		if meta.Has(key.Value) {
			return models.Metadata{}, fmt.Errorf("line %d: duplicate key %q", key.Line, key.Value)
		}
		v, err := nodeValue(val)
		if err != nil {
			return models.Metadata{}, fmt.Errorf("key %q: %w", key.Value, err)
		}
		meta.Set(key.Value, v)
	}
	return meta, nil
}

// nodeValue decodes n like yaml.v3 decodes into any, except that plain
// timestamps keep their source text. Dates are typed through the schema,
// not the decoder.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias != nil {
			return nodeValue(n.Alias)
		}
	case yaml.ScalarNode:
		if n.Tag == "!!timestamp" && n.Style&yaml.TaggedStyle == 0 {
			return n.Value, nil
		}
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode || k.Tag == "!!merge" {
				// Merge keys and complex keys take the decoder's path.
				var v any
				err := n.Decode(&v)
				return v, err
			}
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[k.Value] = v
		}
		return out, nil
	}
	var v any
	err := n.Decode(&v)
	return v, err
}

func parseJSON(data []byte) (*Result, error) {
	var meta models.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return &Result{Metadata: meta}, nil
}
