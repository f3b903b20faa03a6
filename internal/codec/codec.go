// Package codec serializes structured records that may contain
// embedded binary payloads into a single compressed transport unit.
// Binary fields are replaced with tagged placeholders carrying their
// bytes and detected media type, the resulting tree is serialized as
// JSON, and the text is gzip-compressed.
package codec

import (
	"encoding/base64"
	"encoding/json/v2"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
)

const (
	// binaryKey tags a placeholder object holding an extracted binary payload.
	binaryKey = "$binary"
	// escapePrefix marks a literal key that would otherwise collide
	// with the placeholder scheme. Applied at encode time to any key
	// equal to binaryKey or already carrying the prefix, and stripped
	// once on restore, so record data can never be mistaken for an
	// extracted payload.
	escapePrefix = "$escaped:"
)

var timeType = reflect.TypeOf(time.Time{})

// Codec compresses and decompresses records for transport.
type Codec struct {
	compressor Compressor
	logger     *slog.Logger
}

// New creates a codec, probing for the fastest available compression
// backend at startup.
func New(logger *slog.Logger) *Codec {
	compressor := selectCompressor()
	logger.Debug("codec backend selected", slog.String("backend", compressor.Name()))
	return &Codec{compressor: compressor, logger: logger}
}

// NewWithCompressor creates a codec with an explicit backend.
func NewWithCompressor(compressor Compressor, logger *slog.Logger) *Codec {
	return &Codec{compressor: compressor, logger: logger}
}

// Backend returns the name of the active compression backend.
func (c *Codec) Backend() string {
	return c.compressor.Name()
}

// Compress serializes a record into a compressed payload. Binary
// fields nested at any depth are extracted into tagged placeholders.
func (c *Codec) Compress(record any) ([]byte, error) {
	tree, err := encodeValue(reflect.ValueOf(record))
	if err != nil {
		return nil, domainerrors.ErrCodec.WithCause(err)
	}

	data, err := json.Marshal(tree)
	if err != nil {
		return nil, domainerrors.ErrCodec.WithCause(err)
	}

	payload, err := c.compressor.Compress(data)
	if err != nil {
		return nil, domainerrors.ErrCodec.WithCause(err)
	}
	return payload, nil
}

// Decompress reverses Compress, restoring binary placeholders and
// unmarshaling the record into out. Malformed or truncated payloads
// fail with a CODEC error; on error the caller should discard out,
// since a record that decodes only partway may have filled some of
// its fields.
func (c *Codec) Decompress(payload []byte, out any) error {
	data, err := c.compressor.Decompress(payload)
	if err != nil {
		return domainerrors.Codec("decompress payload").WithCause(err)
	}

	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return domainerrors.Codec("parse payload").WithCause(err)
	}

	restored := restoreValue(tree)

	buf, err := json.Marshal(restored)
	if err != nil {
		return domainerrors.ErrCodec.WithCause(err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return domainerrors.Codec("decode record").WithCause(err)
	}
	return nil
}

// encodeValue walks a value and produces a JSON-serializable tree with
// binary payloads replaced by placeholders.
func encodeValue(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return encodeValue(v.Elem())

	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			if v.IsNil() {
				return nil, nil
			}
			return binaryPlaceholder(v.Bytes()), nil
		}
		out := make([]any, v.Len())
		for i := range v.Len() {
			item, err := encodeValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil

	case reflect.Array:
		out := make([]any, v.Len())
		for i := range v.Len() {
			item, err := encodeValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, domainerrors.Codecf("unsupported map key type %s", v.Type().Key())
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			item, err := encodeValue(iter.Value())
			if err != nil {
				return nil, err
			}
			out[escapeKey(iter.Key().String())] = item
		}
		return out, nil

	case reflect.Struct:
		if v.Type() == timeType {
			t := v.Interface().(time.Time)
			return t.UTC().Format(time.RFC3339Nano), nil
		}
		out := make(map[string]any)
		if err := encodeStructFields(v, out); err != nil {
			return nil, err
		}
		return out, nil

	default:
		return v.Interface(), nil
	}
}

// encodeStructFields flattens a struct's exported fields into out,
// inlining anonymous embeds the way encoding/json does.
func encodeStructFields(v reflect.Value, out map[string]any) error {
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, opts, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}

		if field.Anonymous && name == "" && field.Type.Kind() == reflect.Struct && field.Type != timeType {
			if err := encodeStructFields(v.Field(i), out); err != nil {
				return err
			}
			continue
		}
		if name == "" {
			name = field.Name
		}

		fv := v.Field(i)
		if strings.Contains(opts, "omitempty") && fv.IsZero() {
			continue
		}

		item, err := encodeValue(fv)
		if err != nil {
			return err
		}
		out[escapeKey(name)] = item
	}
	return nil
}

// escapeKey guards literal keys that would collide with the binary
// placeholder tag.
func escapeKey(key string) string {
	if key == binaryKey || strings.HasPrefix(key, escapePrefix) {
		return escapePrefix + key
	}
	return key
}

func binaryPlaceholder(data []byte) map[string]any {
	return map[string]any{
		binaryKey: map[string]any{
			"data":      base64.StdEncoding.EncodeToString(data),
			"mediaType": mimetype.Detect(data).String(),
		},
	}
}

// restoreValue walks a decoded tree, collapses binary placeholders
// back to base64 strings (which unmarshal into []byte fields), and
// strips one level of key escaping.
func restoreValue(tree any) any {
	switch node := tree.(type) {
	case map[string]any:
		if len(node) == 1 {
			if inner, ok := node[binaryKey].(map[string]any); ok {
				if data, ok := inner["data"].(string); ok {
					return data
				}
			}
		}
		out := make(map[string]any, len(node))
		for k, v := range node {
			if unescaped, ok := strings.CutPrefix(k, escapePrefix); ok {
				k = unescaped
			}
			out[k] = restoreValue(v)
		}
		return out

	case []any:
		for i, v := range node {
			node[i] = restoreValue(v)
		}
		return node

	default:
		return tree
	}
}
