// Package archive is the write-behind local message store. The reconciler
// tees every reconciled message into it so a restarted client can seed a
// channel's head page without the network. Keys sort by message id, which
// sorts by creation time, so a prefix scan walks a channel in order.
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"chatfeed/pkg/logger"
	"chatfeed/pkg/models"
)

var (
	db     *pebble.DB
	dbPath string
)

// Open opens (or creates) the archive at path and keeps a global handle
// for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_archive", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("archive_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	return nil
}

// Close closes the archive if open.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("archive_closed")
	return nil
}

// Ready reports whether the archive is open.
func Ready() bool {
	return db != nil
}

// msgKey builds the archive key for one message.
// Format: channel:<channelID>:msg:<msgID>
func msgKey(channel, id string) []byte {
	return []byte(fmt.Sprintf("channel:%s:msg:%s", channel, id))
}

// SaveMessage upserts the latest reconciled state of a message. Soft
// deletes arrive here as tombstoned messages and overwrite in place.
func SaveMessage(m models.Message) error {
	if db == nil {
		return fmt.Errorf("archive not opened; call archive.Open first")
	}
	if m.Channel == "" || m.ID == "" {
		return fmt.Errorf("archive: message missing channel or id")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set(msgKey(m.Channel, m.ID), data, pebble.NoSync); err != nil {
		logger.Error("archive_set_failed", "channel", m.Channel, "id", m.ID, "error", err)
		return err
	}
	return nil
}

// DeleteMessage removes a message outright (hard delete path).
func DeleteMessage(channel, id string) error {
	if db == nil {
		return fmt.Errorf("archive not opened; call archive.Open first")
	}
	if err := db.Delete(msgKey(channel, id), pebble.NoSync); err != nil {
		logger.Error("archive_delete_failed", "channel", channel, "id", id, "error", err)
		return err
	}
	return nil
}

// ListChannel returns a channel's archived messages ascending by id. A
// positive limit keeps only the newest limit messages.
func ListChannel(channel string, limit int) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("archive not opened; call archive.Open first")
	}
	prefix := []byte("channel:" + channel + ":msg:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Warn("archive_invalid_entry", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// SeedPage builds an offline head page for a channel from the archive. The
// page carries no cursors: real pagination resumes once the network
// answers and replaces the window.
func SeedPage(channel string, limit int) (*models.Page, error) {
	msgs, err := ListChannel(channel, limit)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &models.Page{Messages: msgs}, nil
}

// DiskUsage returns the archive's on-disk size in bytes, best effort.
func DiskUsage() uint64 {
	if dbPath == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(dbPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	return total
}

// Tee adapts the package-global archive to the reconciler's sink
// interface.
type Tee struct{}

func (Tee) SaveMessage(m models.Message) error     { return SaveMessage(m) }
func (Tee) DeleteMessage(channel, id string) error { return DeleteMessage(channel, id) }
