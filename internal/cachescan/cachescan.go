// Package cachescan derives matchmaking observations from the web view's
// on-disk HTTP cache: the discovered API port, the local player's active
// profile, and opponent candidates, each restricted to a rolling time
// window relative to now.
package cachescan

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"bw-companion/internal/chromecache"
)

const (
	webAPIMarker       = "/web-api/"
	auroraProfilePath  = "/web-api/v2/aurora-profile-by-toon/"
	toonInfoMarker     = "scr_tooninfo"
	mmGameLoadingFlag  = "scr_mmgameloading"
	auroraPathSegments = 3
)

// Entry is one observed cache record. LastUsed is zero when the cache had
// no rankings data for the record.
type Entry struct {
	Key          string
	CreationTime time.Time
	LastUsed     time.Time
}

// EntrySource yields the live entry set of the underlying cache. This is
// the boundary to the cache-file parser; scans never reach past it.
type EntrySource interface {
	Entries() ([]Entry, error)
}

// Refresher is implemented by sources that can re-snapshot the directory.
type Refresher interface {
	Refresh() error
}

// Profile is a (name, gateway) identity parsed out of an aurora-profile URL.
type Profile struct {
	Name    string
	Gateway uint16
}

// KeyAge is a cache key tagged with its age in seconds, for the debug ring.
type KeyAge struct {
	Key     string
	AgeSecs int64
}

// Reader runs windowed, filtered scans over an EntrySource.
type Reader struct {
	source EntrySource
	now    func() time.Time
}

func NewReader(source EntrySource) *Reader {
	return &Reader{source: source, now: time.Now}
}

// Refresh re-snapshots the underlying source when it supports that.
func (r *Reader) Refresh() error {
	if ref, ok := r.source.(Refresher); ok {
		return ref.Refresh()
	}
	return nil
}

// ParseForPort returns the port of the most recently created /web-api/ key
// inside the window, or false when no such key carries a port.
func (r *Reader) ParseForPort(windowSecs int64) (uint16, bool, error) {
	entries, err := r.source.Entries()
	if err != nil {
		return 0, false, fmt.Errorf("scan cache for port: %w", err)
	}

	now := r.now()
	var (
		best   uint16
		bestAt time.Time
		found  bool
	)
	for _, e := range entries {
		if !strings.Contains(e.Key, webAPIMarker) {
			continue
		}
		if !withinWindow(now, e.CreationTime, windowSecs) {
			continue
		}
		port, ok := extractPort(e.Key)
		if !ok {
			continue
		}
		if !found || e.CreationTime.After(bestAt) {
			best, bestAt, found = port, e.CreationTime, true
		}
	}
	return best, found, nil
}

// LatestSelfProfile returns the most recently created toon-info profile
// identity inside the window.
func (r *Reader) LatestSelfProfile(windowSecs int64) (Profile, bool, error) {
	return r.latestByCreation(windowSecs, func(key string) (Profile, bool) {
		if !strings.Contains(key, auroraProfilePath) || !strings.Contains(key, toonInfoMarker) {
			return Profile{}, false
		}
		return parseProfileFromPath(key)
	})
}

// LatestMMGameLoadingProfile returns the most recently created
// mm-game-loading profile identity inside the window.
func (r *Reader) LatestMMGameLoadingProfile(windowSecs int64) (Profile, bool, error) {
	return r.latestByCreation(windowSecs, parseMMGameLoadingProfile)
}

// LatestOpponentProfile returns the mm-game-loading profile most recently
// used inside the window, excluding excludeName case-insensitively. Entries
// rank by last-used, falling back to creation time; entries with neither
// timestamp are skipped. The returned time is the ranking timestamp.
func (r *Reader) LatestOpponentProfile(excludeName string, windowSecs int64) (Profile, time.Time, bool, error) {
	entries, err := r.source.Entries()
	if err != nil {
		return Profile{}, time.Time{}, false, fmt.Errorf("scan cache for opponent: %w", err)
	}

	now := r.now()
	var (
		best   Profile
		bestAt time.Time
		found  bool
	)
	for _, e := range entries {
		profile, ok := parseMMGameLoadingProfile(e.Key)
		if !ok {
			continue
		}
		if excludeName != "" && strings.EqualFold(profile.Name, excludeName) {
			continue
		}
		observed := e.LastUsed
		if observed.IsZero() {
			observed = e.CreationTime
		}
		if observed.IsZero() || !withinWindow(now, observed, windowSecs) {
			continue
		}
		if !found || observed.After(bestAt) {
			best, bestAt, found = profile, observed, true
		}
	}
	return best, bestAt, found, nil
}

// RecentKeys returns up to max /web-api/ keys inside the window, newest by
// last-used first, tagged with their age in seconds.
func (r *Reader) RecentKeys(windowSecs int64, max int) ([]KeyAge, error) {
	entries, err := r.source.Entries()
	if err != nil {
		return nil, fmt.Errorf("scan cache for recent keys: %w", err)
	}

	now := r.now()
	type ranked struct {
		key string
		at  time.Time
	}
	var items []ranked
	for _, e := range entries {
		if !strings.Contains(e.Key, webAPIMarker) {
			continue
		}
		at := e.LastUsed
		if at.IsZero() {
			at = e.CreationTime
		}
		if at.IsZero() || !withinWindow(now, at, windowSecs) {
			continue
		}
		items = append(items, ranked{key: e.Key, at: at})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].at.After(items[j].at) })
	if len(items) > max {
		items = items[:max]
	}

	out := make([]KeyAge, 0, len(items))
	for _, it := range items {
		out = append(out, KeyAge{Key: it.key, AgeSecs: int64(now.Sub(it.at).Seconds())})
	}
	return out, nil
}

func (r *Reader) latestByCreation(windowSecs int64, parse func(string) (Profile, bool)) (Profile, bool, error) {
	entries, err := r.source.Entries()
	if err != nil {
		return Profile{}, false, fmt.Errorf("scan cache entries: %w", err)
	}

	now := r.now()
	var (
		best   Profile
		bestAt time.Time
		found  bool
	)
	for _, e := range entries {
		if e.CreationTime.IsZero() || !withinWindow(now, e.CreationTime, windowSecs) {
			continue
		}
		profile, ok := parse(e.Key)
		if !ok {
			continue
		}
		if !found || e.CreationTime.After(bestAt) {
			best, bestAt, found = profile, e.CreationTime, true
		}
	}
	return best, found, nil
}

func withinWindow(now, at time.Time, windowSecs int64) bool {
	return now.Sub(at) < time.Duration(windowSecs)*time.Second
}

func extractPort(key string) (uint16, bool) {
	parsed, err := url.Parse(key)
	if err != nil {
		return 0, false
	}
	portStr := parsed.Port()
	if portStr == "" {
		return 0, false
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(port), true
}

// parseProfileFromPath reads {name, gateway} from the segments following
// /web-api/v2/aurora-profile-by-toon/. The name segment is percent-decoded.
func parseProfileFromPath(key string) (Profile, bool) {
	parsed, err := url.Parse(key)
	if err != nil {
		return Profile{}, false
	}
	segments := strings.Split(strings.Trim(parsed.EscapedPath(), "/"), "/")
	if len(segments) < auroraPathSegments+2 {
		return Profile{}, false
	}
	if segments[0] != "web-api" || segments[1] != "v2" || segments[2] != "aurora-profile-by-toon" {
		return Profile{}, false
	}
	name, err := url.PathUnescape(segments[3])
	if err != nil || name == "" {
		return Profile{}, false
	}
	gw, err := strconv.ParseUint(segments[4], 10, 16)
	if err != nil {
		return Profile{}, false
	}
	return Profile{Name: name, Gateway: uint16(gw)}, true
}

func parseMMGameLoadingProfile(key string) (Profile, bool) {
	parsed, err := url.Parse(key)
	if err != nil {
		return Profile{}, false
	}
	if !strings.Contains(parsed.Query().Get("request_flags"), mmGameLoadingFlag) {
		return Profile{}, false
	}
	return parseProfileFromPath(key)
}

// DiskSource adapts a chromecache directory to EntrySource, re-reading the
// directory on Refresh.
type DiskSource struct {
	dir   string
	cache *chromecache.Cache
}

func OpenDir(dir string) (*DiskSource, error) {
	cache, err := chromecache.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open cache directory: %w", err)
	}
	return &DiskSource{dir: dir, cache: cache}, nil
}

func (s *DiskSource) Refresh() error {
	cache, err := chromecache.Open(s.dir)
	if err != nil {
		return fmt.Errorf("refresh cache directory: %w", err)
	}
	s.cache = cache
	return nil
}

func (s *DiskSource) Entries() ([]Entry, error) {
	raw := s.cache.Entries()
	out := make([]Entry, 0, len(raw))
	for _, e := range raw {
		out = append(out, Entry{Key: e.Key, CreationTime: e.CreationTime, LastUsed: e.LastUsed})
	}
	return out, nil
}
