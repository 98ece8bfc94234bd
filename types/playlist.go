package types

// Playlist is the provider's view of a multi-item URL.
type Playlist struct {
	ID      string
	Title   string
	Entries []MediaInfo
}

// Items returns the playlist entries, or a single-element slice for a
// plain media item.
func Items(info *MediaInfo, pl *Playlist) []MediaInfo {
	if pl != nil {
		return pl.Entries
	}
	if info != nil {
		return []MediaInfo{*info}
	}
	return nil
}
