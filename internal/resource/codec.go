package resource

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const blobVersion = 1

type blob struct {
	Version   int                 `json:"version"`
	Snapshots map[string]Snapshot `json:"snapshots"`
}

// Stateless encoder/decoder pair; EncodeAll and DecodeAll are safe for
// concurrent use.
var (
	zenc, _ = zstd.NewWriter(nil)
	zdec, _ = zstd.NewReader(nil)
)

// Encode serializes r into a zstd-compressed JSON blob.
func Encode(r *Resource) ([]byte, error) {
	if r == nil {
		return nil, errors.New("resource is nil")
	}
	raw, err := json.Marshal(blob{Version: blobVersion, Snapshots: r.snapshots})
	if err != nil {
		return nil, fmt.Errorf("encode resource: %w", err)
	}
	return zenc.EncodeAll(raw, nil), nil
}

// Decode parses a blob written by Encode.
func Decode(data []byte) (*Resource, error) {
	raw, err := zdec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress resource: %w", err)
	}
	var b blob
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}
	if b.Version > blobVersion {
		return nil, fmt.Errorf("resource blob version %d is newer than supported %d", b.Version, blobVersion)
	}

	r := New()
	for u, s := range b.Snapshots {
		switch s.Kind {
		case KindText:
			s.Seen = nil
		case KindSeen:
			s.Text = ""
			if s.Seen == nil {
				s.Seen = NewSeenSet()
			}
		default:
			return nil, fmt.Errorf("snapshot %q: unknown kind %q", u, s.Kind)
		}
		r.snapshots[u] = s
	}
	return r, nil
}
