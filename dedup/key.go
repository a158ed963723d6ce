package dedup

import (
	"fmt"
	"strings"

	"github.com/s0up4200/qbit-dedup/qbittorrent"
)

const pathSeparators = `/\`

// GroupKey identifies the logical download an entry belongs to. Entries
// with equal keys are duplicates of one another.
type GroupKey struct {
	SavePath string
	Folder   string
}

func (k GroupKey) String() string {
	if k.Folder == "" {
		return k.SavePath
	}
	return k.SavePath + "/" + k.Folder
}

// KeyPolicy derives the GroupKey of an entry.
type KeyPolicy interface {
	Name() string
	Key(e qbittorrent.Entry) GroupKey
}

// KeyFunc adapts a function to KeyPolicy.
type KeyFunc struct {
	PolicyName string
	Fn         func(e qbittorrent.Entry) GroupKey
}

func (f KeyFunc) Name() string { return f.PolicyName }
func (f KeyFunc) Key(e qbittorrent.Entry) GroupKey { return f.Fn(e) }

// Built-in policy names.
const (
	PolicyFolder   = "folder"
	PolicyName     = "name"
	PolicySavePath = "save_path"
)

var (
	// FolderPolicy groups by save path and the top-level folder of the
	// content path. This is the default.
	FolderPolicy KeyPolicy = KeyFunc{PolicyName: PolicyFolder, Fn: folderKey}

	// NamePolicy groups by save path and torrent name.
	NamePolicy KeyPolicy = KeyFunc{PolicyName: PolicyName, Fn: nameKey}

	// SavePathPolicy groups by save path alone.
	SavePathPolicy KeyPolicy = KeyFunc{PolicyName: PolicySavePath, Fn: savePathKey}
)

// Policies lists the built-in policy names.
func Policies() []string {
	return []string{PolicyFolder, PolicyName, PolicySavePath}
}

// PolicyByName returns the built-in policy with the given name.
func PolicyByName(name string) (KeyPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyFolder:
		return FolderPolicy, nil
	case PolicyName:
		return NamePolicy, nil
	case PolicySavePath:
		return SavePathPolicy, nil
	default:
		return nil, fmt.Errorf("unknown group policy %q (must be one of %s)", name, strings.Join(Policies(), ", "))
	}
}

func folderKey(e qbittorrent.Entry) GroupKey {
	savePath := trimTrailingSeparator(e.SavePath)
	return GroupKey{SavePath: savePath, Folder: FolderName(savePath, e.ContentPath, e.Name)}
}

func nameKey(e qbittorrent.Entry) GroupKey {
	return GroupKey{SavePath: trimTrailingSeparator(e.SavePath), Folder: e.Name}
}

func savePathKey(e qbittorrent.Entry) GroupKey {
	return GroupKey{SavePath: trimTrailingSeparator(e.SavePath)}
}

// FolderName returns the first path segment of contentPath below savePath.
// It falls back to name when contentPath is not inside savePath or nothing
// remains after the prefix.
func FolderName(savePath, contentPath, name string) string {
	savePath = trimTrailingSeparator(savePath)

	if !strings.HasPrefix(contentPath, savePath) {
		return name
	}

	rest := contentPath[len(savePath):]
	if rest == "" || !strings.ContainsRune(pathSeparators, rune(rest[0])) {
		// Equal paths, or a sibling such as /data2 under /data.
		return name
	}

	rest = strings.TrimLeft(rest, pathSeparators)
	if i := strings.IndexAny(rest, pathSeparators); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return name
	}
	return rest
}

func trimTrailingSeparator(p string) string {
	return strings.TrimRight(p, pathSeparators)
}
