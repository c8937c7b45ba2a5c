package discovery

import (
	"encoding/json"
	"os"
)

// CacheVersion is the current bootstrap-cache document version, the
// only version SaveCache writes; it has no option to also emit a
// PreviousCacheVersion document.
const CacheVersion = 2

// PreviousCacheVersion is the prior document version.
const PreviousCacheVersion = 1

// Cache is the persisted bootstrap-cache document: a versioned JSON file
// of {version, network_version, peers}.
type Cache struct {
	Version        int      `json:"version"`
	NetworkVersion string   `json:"network_version"`
	Peers          []string `json:"peers"`
}

// LoadCache reads a bootstrap cache file. It decodes a document of any
// version without checking the version field.
func LoadCache(path string) (Cache, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Cache{}, err
	}
	var c Cache
	if err := json.Unmarshal(b, &c); err != nil {
		return Cache{}, err
	}
	return c, nil
}

// SaveCache writes a bootstrap cache file at CacheVersion, overwriting
// any existing file atomically via a rename.
func SaveCache(path string, networkVersion string, peers []PeerAddr) error {
	raw := make([]string, len(peers))
	for i, p := range peers {
		raw[i] = p.Raw
	}
	c := Cache{Version: CacheVersion, NetworkVersion: networkVersion, Peers: raw}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Addrs parses every peer string in the cache, discarding any that no
// longer match the canonical multiaddr shape.
func (c Cache) Addrs() []PeerAddr {
	return parseLines(c.Peers)
}
