package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/shelf/internal/models"
)

// Snapshot artifact suffixes, appended to the base path.
const (
	FlatSuffix    = ".flat"
	IVFSuffix     = ".ivf"
	MappingSuffix = ".mapping"
)

// SnapshotExists reports whether all three snapshot artifacts exist at path.
func SnapshotExists(path string) bool {
	for _, suffix := range []string{FlatSuffix, IVFSuffix, MappingSuffix} {
		if _, err := os.Stat(path + suffix); err != nil {
			return false
		}
	}
	return true
}

func ioError(op, path string, err error) error {
	return models.NewOpError(op, fmt.Errorf("%s: %w: %w", path, models.ErrIndexIO, err))
}

// Persist writes the engines and the id mapping to path.flat, path.ivf and
// path.mapping. It blocks writers and readers until done and ignores
// cancellation of ctx.
func (idx *Index) Persist(ctx context.Context, path string) (err error) {
	ctx = context.WithoutCancel(ctx)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer func() { idx.observe("persist", err) }()

	s := idx.state
	type artifact struct {
		suffix string
		data   []byte
	}
	var artifacts []artifact
	for _, se := range s.engines() {
		blob, err := se.engine.MarshalBinary()
		if err != nil {
			return models.NewOpError("persist", fmt.Errorf("%s: %w", se.suffix, err))
		}
		artifacts = append(artifacts, artifact{se.suffix, blob})
	}
	records, err := idx.catalog.GetMany(ctx, s.ids)
	if err != nil {
		return models.NewOpError("persist", err)
	}
	ordered := make([]*models.Record, len(s.ids))
	for off, id := range s.ids {
		r, ok := records[id]
		if !ok {
			return models.NewOpError("persist", fmt.Errorf("indexed record %q missing from catalog: %w", id, models.ErrNotFound))
		}
		ordered[off] = r.WithoutEmbedding()
	}
	mapping, err := encodeMapping(ordered)
	if err != nil {
		return models.NewOpError("persist", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return ioError("persist", dir, err)
		}
	}
	artifacts = append(artifacts, artifact{MappingSuffix, mapping})
	for _, a := range artifacts {
		if err := writeFileAtomic(path+a.suffix, a.data); err != nil {
			return ioError("persist", path+a.suffix, err)
		}
	}
	idx.logger.Info("Index persisted", zap.String("path", path), zap.Int("records", len(s.ids)))
	return nil
}

// Restore replaces the index with the snapshot at path and writes the
// snapshot records back to the catalog. Catalog rows the snapshot does not
// cover stay, unindexed. Nothing changes unless the whole snapshot decodes.
func (idx *Index) Restore(ctx context.Context, path string) (err error) {
	ctx = context.WithoutCancel(ctx)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	defer func() { idx.observe("restore", err) }()

	read := func(suffix string) ([]byte, error) {
		data, err := os.ReadFile(path + suffix)
		if err != nil {
			return nil, ioError("restore", path+suffix, err)
		}
		return data, nil
	}
	next, err := idx.emptyState()
	if err != nil {
		return models.NewOpError("restore", err)
	}
	for _, se := range next.engines() {
		blob, err := read(se.suffix)
		if err != nil {
			return err
		}
		if err := se.engine.UnmarshalBinary(blob); err != nil {
			return models.NewOpError("restore", fmt.Errorf("%s: %w", se.suffix, err))
		}
	}
	mapping, err := read(MappingSuffix)
	if err != nil {
		return err
	}
	records, err := decodeMapping(mapping)
	if err != nil {
		return models.NewOpError("restore", fmt.Errorf("%s: %w", MappingSuffix, err))
	}
	if len(records) != next.flat.Size() || next.ivf.Size() != next.flat.Size() {
		return models.NewOpError("restore", corrupt("mapping has %d records, flat %d vectors, ivf %d vectors",
			len(records), next.flat.Size(), next.ivf.Size()))
	}
	next.ids = make([]string, len(records))
	for off, r := range records {
		if r.ID == "" {
			return models.NewOpError("restore", corrupt("record at offset %d has no id", off))
		}
		if _, dup := next.offsets[r.ID]; dup {
			return models.NewOpError("restore", corrupt("duplicate record id %q", r.ID))
		}
		next.offsets[r.ID] = off
		next.ids[off] = r.ID
		r.Embedding = append([]float32(nil), next.flat.Vector(off)...)
	}

	if err = idx.catalog.Put(ctx, records); err != nil {
		return models.NewOpError("restore", err)
	}
	idx.swap(next)
	idx.logger.Info("Index restored",
		zap.String("path", path),
		zap.Int("records", len(next.ids)),
		zap.Bool("trained", next.ivf.Trained()))
	return nil
}

// encodeMapping writes [u64 count] then [u64 len, json] per record.
func encodeMapping(records []*models.Record) ([]byte, error) {
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(records)))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode record %q: %w", r.ID, err)
		}
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(data)))
		buf = append(buf, data...)
	}
	return buf, nil
}

func decodeMapping(data []byte) ([]*models.Record, error) {
	r := &blobReader{data: data}
	// Each record needs at least its 8-byte length prefix.
	n, err := r.count(8)
	if err != nil {
		return nil, err
	}
	records := make([]*models.Record, n)
	for i := range records {
		size, err := r.count(1)
		if err != nil {
			return nil, err
		}
		var rec models.Record
		if err := json.Unmarshal(r.data[r.pos:r.pos+size], &rec); err != nil {
			return nil, corrupt("record %d: %v", i, err)
		}
		r.pos += size
		records[i] = &rec
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return records, nil
}

// writeFileAtomic writes data to a temp file beside path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		return errors.Join(err, tmp.Close(), os.Remove(name))
	}
	if err := tmp.Sync(); err != nil {
		return errors.Join(err, tmp.Close(), os.Remove(name))
	}
	if err := tmp.Close(); err != nil {
		return errors.Join(err, os.Remove(name))
	}
	return os.Rename(name, path)
}
