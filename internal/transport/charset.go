package transport

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// lookupEncoding resolves a charset label to an encoding. An empty label or
// any UTF-8 alias yields nil, meaning no transformation.
func lookupEncoding(charset string) (encoding.Encoding, error) {
	label := strings.ToLower(strings.TrimSpace(charset))
	if label == "" || label == "utf-8" || label == "utf8" {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	return enc, nil
}

// encodeForm builds an application/x-www-form-urlencoded body with values
// transformed into the target charset before percent-encoding. Keys are
// emitted in sorted order so request bodies are deterministic.
func encodeForm(form map[string]string, enc encoding.Encoding) (string, error) {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		v := form[k]
		if enc != nil {
			encoded, err := enc.NewEncoder().String(v)
			if err != nil {
				return "", fmt.Errorf("encode form field %q: %w", k, err)
			}
			v = encoded
		}
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}
	return b.String(), nil
}

// decodeBody transforms a response body from the profile charset to UTF-8.
func decodeBody(body []byte, enc encoding.Encoding) (string, error) {
	if enc == nil {
		return string(body), nil
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decode response body: %w", err)
	}
	return string(decoded), nil
}
