package sqlite

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mesh-intelligence/domainkit/internal/store"
	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

// entityFile returns the JSONL file of entityID in dataDir.
func entityFile(dataDir, entityID string) string {
	return filepath.Join(dataDir, entityID+".jsonl")
}

// readJSONL returns each non-empty line of a JSONL file that is valid JSON.
// Malformed lines are skipped.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		records = append(records, json.RawMessage(append([]byte(nil), line...)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL replaces path with records, one per line. The file is written
// to a temporary sibling, synced and renamed into place.
func writeJSONL(path string, records []json.RawMessage) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// initJSONLFiles creates an empty JSONL file for every table backed entity
// type that has none.
func initJSONLFiles(dataDir string, d *domain.Domain) error {
	for _, def := range d.Definitions() {
		if def.SelectQueryText() != "" {
			continue
		}
		path := entityFile(dataDir, def.EntityID())
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

// exportEntityType writes every row of entityID to its JSONL file.
func exportEntityType(ctx context.Context, st *store.Store, dataDir, entityID string) error {
	entities, err := st.Scan(ctx, entityID)
	if err != nil {
		return err
	}
	records := make([]json.RawMessage, 0, len(entities))
	for _, e := range entities {
		data, err := domain.Encode(e)
		if err != nil {
			return err
		}
		records = append(records, data)
	}
	return writeJSONL(entityFile(dataDir, entityID), records)
}

// ExportAll writes every table backed entity type of st to a JSONL file in
// dir, one file per type. It works on any store, so PostgreSQL data can be
// exported to files the sqlite backend loads.
func ExportAll(ctx context.Context, st *store.Store, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, def := range st.Domain().Definitions() {
		if def.SelectQueryText() != "" {
			continue
		}
		if err := exportEntityType(ctx, st, dir, def.EntityID()); err != nil {
			return fmt.Errorf("exporting %s: %w", def.EntityID(), err)
		}
	}
	return nil
}
