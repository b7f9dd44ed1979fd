package backend

import (
	"path"
	"strings"
)

// RelPath converts an absolute backend path to a root-relative path with a
// leading slash ("/remote/dir/f" under "/remote" -> "/dir/f"). The root
// itself maps to "/". Paths outside root are returned cleaned but
// unchanged.
func RelPath(root, p string) string {
	root = path.Clean("/" + strings.TrimPrefix(root, "/"))
	p = path.Clean("/" + strings.TrimPrefix(p, "/"))

	if p == root {
		return "/"
	}
	if root == "/" {
		return p
	}
	if strings.HasPrefix(p, root+"/") {
		return p[len(root):]
	}
	return p
}

// AbsPath joins a root and a root-relative path back into an absolute
// backend path.
func AbsPath(root, rel string) string {
	return path.Join("/", root, rel)
}

// UnderPath reports whether p equals prefix or lies below it. Matching is
// component-wise: "/remote2/f" is not under "/remote".
func UnderPath(prefix, p string) bool {
	prefix = path.Clean("/" + strings.TrimPrefix(prefix, "/"))
	p = path.Clean("/" + strings.TrimPrefix(p, "/"))

	if prefix == "/" || p == prefix {
		return true
	}
	return strings.HasPrefix(p, prefix+"/")
}

// Depth counts how many levels p sits below base. Returns 0 when p equals
// base, 1 for a direct child.
func Depth(base, p string) int {
	rel := RelPath(base, p)
	if rel == "/" {
		return 0
	}
	return strings.Count(rel, "/")
}
