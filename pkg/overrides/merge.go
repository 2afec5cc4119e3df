package overrides

import "github.com/roomforge/themekit/pkg/theme"

// DeepMerge returns a new map holding base with override layered on top.
// Where both sides hold an object the two are merged key by key, at any
// depth. Every other value, arrays included, is replaced by override's.
// Neither input is modified and the result shares nothing with them.
func DeepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = theme.CloneValue(v)
	}
	for k, v := range override {
		if src, ok := v.(map[string]any); ok {
			if dst, ok := out[k].(map[string]any); ok {
				out[k] = deepMergeInto(dst, src)
				continue
			}
		}
		out[k] = theme.CloneValue(v)
	}
	return out
}

// deepMergeInto merges src into dst, which is already a private copy.
func deepMergeInto(dst, src map[string]any) map[string]any {
	for k, v := range src {
		if srcObj, ok := v.(map[string]any); ok {
			if dstObj, ok := dst[k].(map[string]any); ok {
				dst[k] = deepMergeInto(dstObj, srcObj)
				continue
			}
		}
		dst[k] = theme.CloneValue(v)
	}
	return dst
}
