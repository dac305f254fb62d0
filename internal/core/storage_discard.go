package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"stancore/internal/blob"
	"stancore/internal/transfer"
	"stancore/pkg/domain"
)

var _ transfer.StorageDiscarder = (*ManifestDiscarder)(nil)

// DiscardManifestPrefix is the blob key prefix of storage discard manifests.
const DiscardManifestPrefix = "discards/"

const manifestKeyAttempts = 8

// DiscardManifest asks the external storage tracker to unstore labware.
type DiscardManifest struct {
	Username    string    `json:"username"`
	Barcodes    []string  `json:"barcodes"`
	RequestedAt time.Time `json:"requested_at"`
}

// ManifestDiscarder hands storage discards to the storage tracker by writing
// one JSON manifest per request into a blob store.
type ManifestDiscarder struct {
	store blob.Store
	clock Clock
	seq   atomic.Uint64
}

// NewManifestDiscarder writes manifests to store, stamped by clock.
func NewManifestDiscarder(store blob.Store, clock Clock) *ManifestDiscarder {
	if clock == nil {
		clock = domain.SystemClock()
	}
	return &ManifestDiscarder{store: store, clock: clock}
}

// DiscardStorage implements transfer.StorageDiscarder.
func (d *ManifestDiscarder) DiscardStorage(ctx context.Context, user domain.User, barcodes []string) error {
	manifest := DiscardManifest{
		Username:    user.Username,
		Barcodes:    append([]string(nil), barcodes...),
		RequestedAt: d.clock.Now().UTC(),
	}
	payload, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode discard manifest: %w", err)
	}
	opts := blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"username": user.Username},
	}
	stamp := manifest.RequestedAt.Format("20060102T150405.000000000Z")
	for attempt := 0; attempt < manifestKeyAttempts; attempt++ {
		key := fmt.Sprintf("%s%s-%06d.json", DiscardManifestPrefix, stamp, d.seq.Add(1))
		_, err := d.store.Put(ctx, key, bytes.NewReader(payload), opts)
		if err == nil {
			return nil
		}
		if !errors.Is(err, blob.ErrExists) {
			return fmt.Errorf("write discard manifest: %w", err)
		}
	}
	return fmt.Errorf("write discard manifest: no free key after %d attempts", manifestKeyAttempts)
}

// Manifests reads back every stored manifest in key order.
func (d *ManifestDiscarder) Manifests(ctx context.Context) ([]DiscardManifest, error) {
	infos, err := d.store.List(ctx, DiscardManifestPrefix)
	if err != nil {
		return nil, fmt.Errorf("list discard manifests: %w", err)
	}
	out := make([]DiscardManifest, 0, len(infos))
	for _, info := range infos {
		if !strings.HasSuffix(info.Key, ".json") {
			continue
		}
		manifest, err := d.read(ctx, info.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, manifest)
	}
	return out, nil
}

func (d *ManifestDiscarder) read(ctx context.Context, key string) (DiscardManifest, error) {
	_, rc, err := d.store.Get(ctx, key)
	if err != nil {
		return DiscardManifest{}, fmt.Errorf("read discard manifest %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return DiscardManifest{}, fmt.Errorf("read discard manifest %s: %w", key, err)
	}
	var manifest DiscardManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return DiscardManifest{}, fmt.Errorf("decode discard manifest %s: %w", key, err)
	}
	return manifest, nil
}
