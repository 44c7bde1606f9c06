package draft

import (
	"io"
	"mime/multipart"
	"sort"
	"strconv"
	"strings"
)

// Binary marks an uploaded file held in form state. It is never persisted.
type Binary struct {
	Name string
	Data []byte
}

const placeholderKey = "$binary"

// placeholder is what a binary value turns into on disk.
func placeholder(name string) map[string]any {
	return map[string]any{placeholderKey: true, "name": name}
}

func isPlaceholder(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	b, _ := m[placeholderKey].(bool)
	return b
}

// binaryName reports whether v is a file-like value and, if so, the file
// name to remember. fallback is used when the value carries no name.
func binaryName(v any, fallback string) (string, bool) {
	switch t := v.(type) {
	case Binary:
		return nonEmpty(t.Name, fallback), true
	case *Binary:
		if t == nil {
			return "", false
		}
		return nonEmpty(t.Name, fallback), true
	case *multipart.FileHeader:
		if t == nil {
			return "", false
		}
		return nonEmpty(t.Filename, fallback), true
	case []byte:
		return fallback, true
	case io.Reader:
		return fallback, true
	case string:
		if strings.HasPrefix(t, "data:") && strings.Contains(t, ";base64,") {
			return fallback, true
		}
	}
	return "", false
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// strip returns a copy of fields with every file-like value replaced by a
// placeholder. Maps and slices are walked.
func strip(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = stripValue(v, k)
	}
	return out
}

func stripValue(v any, name string) any {
	if n, ok := binaryName(v, name); ok {
		return placeholder(n)
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = stripValue(e, k)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = stripValue(e, name)
		}
		return out
	}
	return v
}

// restore removes placeholders from decoded fields in place and returns the
// dotted paths they occupied, sorted. Placeholders inside lists become nil
// so element positions are preserved.
func restore(fields map[string]any) []string {
	var missing []string
	restoreMap(fields, "", &missing)
	sort.Strings(missing)
	return missing
}

func restoreMap(m map[string]any, prefix string, missing *[]string) {
	for k, v := range m {
		p := join(prefix, k)
		if isPlaceholder(v) {
			delete(m, k)
			*missing = append(*missing, p)
			continue
		}
		restoreValue(v, p, missing)
	}
}

func restoreValue(v any, path string, missing *[]string) {
	switch t := v.(type) {
	case map[string]any:
		restoreMap(t, path, missing)
	case []any:
		for i, e := range t {
			p := join(path, strconv.Itoa(i))
			if isPlaceholder(e) {
				t[i] = nil
				*missing = append(*missing, p)
				continue
			}
			restoreValue(e, p, missing)
		}
	}
}

func join(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + "." + k
}
