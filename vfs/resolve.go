package vfs

import (
	"oops/bpath"
	"oops/defs"
	"oops/ustr"
)

// symlinkLimit bounds recursive symlink following, spec.md §4.5: "Symbolic
// links are followed with a recursion bound (32) unless the open mode
// contains NOFOLLOW."
const symlinkLimit = 32

// Resolve walks path (relative to start, or absolute) component by
// component, crossing mount points and following symlinks, and returns
// the final node. The last component is not followed if nofollow is set,
// matching open(2)'s O_NOFOLLOW.
func (mt *MountTable) Resolve(start Dirnode_i, path ustr.Ustr, nofollow bool) (Node_i, defs.Err_t) {
	return mt.resolve(start, path, nofollow, 0)
}

func (mt *MountTable) resolve(start Dirnode_i, path ustr.Ustr, nofollow bool, depth int) (Node_i, defs.Err_t) {
	if depth > symlinkLimit {
		return nil, -defs.ELOOP
	}
	cur := start
	if path.IsAbsolute() {
		cur = mt.Root()
	}
	parts := bpath.Pathparts(path)
	if len(parts) == 0 {
		return cur, 0
	}
	mt.RLock()
	cur = mt.crossLocked(cur)
	mt.RUnlock()

	for i, name := range parts {
		last := i == len(parts)-1
		child, err := cur.OpenAt(name, defs.O_RDONLY, 0)
		if err != 0 {
			return nil, err
		}
		if child.Kind() == defs.S_IFLNK && (!last || !nofollow) {
			ln, ok := child.(Linknode_i)
			if !ok {
				return nil, -defs.EINVAL
			}
			target, err := ln.Readlink()
			if err != 0 {
				return nil, err
			}
			resolved, err := mt.resolve(cur, target, false, depth+1)
			if err != 0 {
				return nil, err
			}
			if last {
				return resolved, 0
			}
			dirnode, ok := resolved.(Dirnode_i)
			if !ok {
				return nil, -defs.ENOTDIR
			}
			cur = dirnode
			continue
		}
		if last {
			return child, 0
		}
		dirnode, ok := child.(Dirnode_i)
		if !ok {
			return nil, -defs.ENOTDIR
		}
		mt.RLock()
		cur = mt.crossLocked(dirnode)
		mt.RUnlock()
	}
	return cur, 0
}

// ResolveParent walks all but the last component of path and returns the
// parent directory plus the final component name, used by create/mkdir/
// unlink/rename which need to operate on the containing directory.
func (mt *MountTable) ResolveParent(start Dirnode_i, path ustr.Ustr) (Dirnode_i, ustr.Ustr, defs.Err_t) {
	parts := bpath.Pathparts(path)
	if len(parts) == 0 {
		return nil, nil, -defs.EINVAL
	}
	name := parts[len(parts)-1]
	dirpath := bpath.Sdirname(path)
	if len(parts) == 1 && !path.IsAbsolute() {
		return start, name, 0
	}
	n, err := mt.Resolve(start, dirpath, false)
	if err != 0 {
		return nil, nil, err
	}
	dn, ok := n.(Dirnode_i)
	if !ok {
		return nil, nil, -defs.ENOTDIR
	}
	return dn, name, 0
}
