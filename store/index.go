package store

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// indexEntry is the metadata database.Database persists per address,
// separate from the record body held in BlobStore, backing the
// "persist records with bounded resources" framing. msgpack is reused
// here purely as a convenient generic struct codec (it is already a
// module dependency for pointer signature compatibility); there is no
// cross-implementation wire-compatibility requirement on this encoding,
// since it never leaves the local peer.
type indexEntry struct {
	Kind    uint8
	Size    int64
	ModTime int64 // UnixNano
}

func encodeIndexEntry(e indexEntry) ([]byte, error) {
	return msgpack.Marshal(e)
}

func decodeIndexEntry(b []byte) (indexEntry, error) {
	var e indexEntry
	err := msgpack.Unmarshal(b, &e)
	return e, err
}

func (e indexEntry) modTime() time.Time {
	return time.Unix(0, e.ModTime)
}
