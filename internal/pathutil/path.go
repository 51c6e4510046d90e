// Package pathutil provides manipulation of slash-separated internal
// archive paths. The archive root is the empty string; no path carries a
// leading or trailing slash.
package pathutil

import "strings"

// Normalize canonicalizes an internal archive path: separators collapse,
// "." segments drop out and leading/trailing slashes are trimmed.
// It reports false for absolute paths and paths containing ".." segments,
// which archives never store.
func Normalize(p string) (string, bool) {
	if strings.HasPrefix(p, "/") {
		return "", false
	}
	parts := strings.Split(p, "/")
	out := parts[:0] // reuse backing array
	for _, part := range parts {
		switch part {
		case "", ".":
		case "..":
			return "", false
		default:
			out = append(out, part)
		}
	}
	return strings.Join(out, "/"), true
}

// Base returns the last element of a slash-separated path.
// The base of the root is "".
func Base(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Dir returns the path with its last element removed.
// The dir of a single-element path, and of the root, is the root.
func Dir(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i]
	}
	return ""
}

// Parents returns all strict ancestors of path, nearest first, excluding
// the root: Parents("a/b/c") is ["a/b", "a"]. The root has no parents.
func Parents(path string) []string {
	var out []string
	for p := Dir(path); p != ""; p = Dir(p) {
		out = append(out, p)
	}
	return out
}

// DirPrefix converts a directory path to the prefix its children share.
// The root's prefix is "" so that it matches every name.
func DirPrefix(dir string) string {
	if dir == "" {
		return ""
	}
	return dir + "/"
}

// Child extracts the immediate child under prefix from a full path.
// It reports whether the path descends further than one level.
// The path must carry the prefix; callers check that first.
func Child(path, prefix string) (name string, isSubDir bool) {
	rel := strings.TrimPrefix(path, prefix)
	if i := strings.Index(rel, "/"); i >= 0 {
		return rel[:i], true
	}
	return rel, false
}

// IsWithin reports whether path is strictly below dir.
func IsWithin(path, dir string) bool {
	return path != dir && strings.HasPrefix(path, DirPrefix(dir))
}
