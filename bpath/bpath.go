// Package bpath canonicalizes and splits filesystem paths, used by the VFS
// path walker and by fd.Cwd_t when resolving a relative path.
package bpath

import (
	"strings"

	"oops/ustr"
)

// Canonicalize collapses "." and ".." components and duplicate slashes,
// producing an absolute, slash-separated path with no trailing slash
// (except for the root itself).
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	parts := strings.Split(p.String(), "/")
	var out []string
	for _, c := range parts {
		switch c {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, c)
		}
	}
	return ustr.NewUstr("/" + strings.Join(out, "/"))
}

// Pathparts splits a canonical path into its non-empty components.
func Pathparts(p ustr.Ustr) []ustr.Ustr {
	s := p.String()
	raw := strings.Split(s, "/")
	var ret []ustr.Ustr
	for _, c := range raw {
		if c != "" {
			ret = append(ret, ustr.NewUstr(c))
		}
	}
	return ret
}

// Sdirname/Sbasename split the last component off a canonical path, the
// same split dirname(3)/basename(3) perform.
func Sdirname(p ustr.Ustr) ustr.Ustr {
	s := p.String()
	i := strings.LastIndex(s, "/")
	if i <= 0 {
		return ustr.NewUstr("/")
	}
	return ustr.NewUstr(s[:i])
}

func Sbasename(p ustr.Ustr) ustr.Ustr {
	s := p.String()
	i := strings.LastIndex(s, "/")
	return ustr.NewUstr(s[i+1:])
}
