// Package codec reversibly obfuscates URLs that point at sensitive domains
// before they are persisted, and restores them on read.
package codec

import (
	"encoding/base64"
	"strings"
)

// tag marks an encoded value so decoding can tell it apart from a plain URL.
const tag = "b64:"

// Codec encodes and decodes URLs against a configured sensitive-domain list.
type Codec struct {
	domains []string
}

// New builds a Codec. Domains are matched case-insensitively as substrings
// of the full URL.
func New(domains []string) *Codec {
	lowered := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			lowered = append(lowered, d)
		}
	}
	return &Codec{domains: lowered}
}

// Encode returns url unchanged unless it references a sensitive domain, in
// which case it returns a tagged base64 rendition.
func (c *Codec) Encode(url string) string {
	if url == "" {
		return url
	}
	lower := strings.ToLower(url)
	for _, d := range c.domains {
		if strings.Contains(lower, d) {
			return tag + base64.StdEncoding.EncodeToString([]byte(url))
		}
	}
	return url
}

// Decode restores a value produced by Encode. Untagged input is returned
// unchanged, so decoding is idempotent.
func (c *Codec) Decode(value string) string {
	if !strings.HasPrefix(value, tag) {
		return value
	}
	raw, err := base64.StdEncoding.DecodeString(value[len(tag):])
	if err != nil {
		// Not one of ours after all; leave it be.
		return value
	}
	return string(raw)
}

// IsURLKey reports whether a document key holds a URL by the archive's
// naming convention.
func IsURLKey(key string) bool {
	return key == "url" || key == "cover_url" || strings.HasSuffix(key, "_url")
}

// Transform walks a decoded JSON tree and applies fn to every string value
// whose mapping key satisfies match. Values under non-matching keys are
// walked recursively, never transformed.
func Transform(doc any, match func(key string) bool, fn func(string) string) any {
	switch node := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for key, value := range node {
			if s, ok := value.(string); ok && match(key) {
				out[key] = fn(s)
				continue
			}
			out[key] = Transform(value, match, fn)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, item := range node {
			out[i] = Transform(item, match, fn)
		}
		return out
	default:
		return doc
	}
}

// EncodeTree applies Encode to every URL-keyed string in a JSON tree.
func (c *Codec) EncodeTree(doc any) any {
	return Transform(doc, IsURLKey, c.Encode)
}

// DecodeTree is the inverse of EncodeTree.
func (c *Codec) DecodeTree(doc any) any {
	return Transform(doc, IsURLKey, c.Decode)
}
