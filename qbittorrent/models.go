package qbittorrent

import (
	"strings"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
)

// Entry is a torrent as reported by qBittorrent
type Entry struct {
	Hash        string
	Name        string
	SavePath    string
	ContentPath string
	AddedOn     time.Time
	Category    string
	Tags        []string
	State       string
	Size        int64
}

// newEntry converts the WebAPI torrent shape into an Entry
func newEntry(t qbt.Torrent) Entry {
	return Entry{
		Hash:        t.Hash,
		Name:        t.Name,
		SavePath:    t.SavePath,
		ContentPath: t.ContentPath,
		AddedOn:     time.Unix(t.AddedOn, 0),
		Category:    t.Category,
		Tags:        splitTags(t.Tags),
		State:       string(t.State),
		Size:        t.Size,
	}
}

// splitTags turns qBittorrent's comma separated tag list into a slice
func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// HasTag reports whether the entry carries the given tag (case-insensitive)
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// IsActivelySeeding checks if the torrent is actively seeding
func (e Entry) IsActivelySeeding() bool {
	return e.State == "uploading" || e.State == "stalledUP" || e.State == "queuedUP" || e.State == "forcedUP"
}

// IDs returns the hashes of the given entries in input order
func IDs(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Hash
	}
	return ids
}
