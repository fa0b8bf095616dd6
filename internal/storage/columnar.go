package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/coderisk/coupler/internal/apperrors"
	"github.com/coderisk/coupler/internal/models"
)

// Columnar buckets/keys for commits.bbolt and changes.bbolt (SPEC_FULL.md
// §6.1). Both files share the same shape: an ordered primary bucket keyed
// by a big-endian composite so a Cursor.Seek gives predicate push-down on
// commit_ts, plus secondary-index buckets mapping a lookup key to the
// primary key for point lookups by commit_oid or entity_id.
var (
	bucketPrimary      = []byte("primary")
	bucketByCommitOID  = []byte("by_commit_oid")
	bucketByEntityID   = []byte("by_entity_id")
)

// ColumnarStore holds the append-mostly commit and change records the
// extractor (C5) produces, separate from the relational Store: these rows
// are never updated in place and can number in the millions for a large
// repository, which is a poor fit for SQLite/Postgres row storage but
// exactly what an embedded ordered key-value store is for.
type ColumnarStore struct {
	dir     string
	commits *bolt.DB
	changes *bolt.DB
}

// OpenColumnarStore opens (creating if necessary) the commits.bbolt and
// changes.bbolt files under dir.
func OpenColumnarStore(dir string) (*ColumnarStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.IOErrorf(err, "create columnar directory %s", dir)
	}
	cs := &ColumnarStore{dir: dir}

	commitsPath := filepath.Join(dir, "commits.bbolt")
	db, err := bolt.Open(commitsPath, 0o644, nil)
	if err != nil {
		return nil, apperrors.IOErrorf(err, "open %s", commitsPath)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketPrimary, bucketByCommitOID} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, apperrors.IOErrorf(err, "init buckets in %s", commitsPath)
	}
	cs.commits = db

	changesPath := filepath.Join(dir, "changes.bbolt")
	db, err = bolt.Open(changesPath, 0o644, nil)
	if err != nil {
		cs.commits.Close()
		return nil, apperrors.IOErrorf(err, "open %s", changesPath)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketPrimary, bucketByCommitOID, bucketByEntityID} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		cs.commits.Close()
		return nil, apperrors.IOErrorf(err, "init buckets in %s", changesPath)
	}
	cs.changes = db

	return cs, nil
}

// Close closes both underlying bbolt files.
func (cs *ColumnarStore) Close() error {
	err1 := cs.commits.Close()
	err2 := cs.changes.Close()
	if err1 != nil {
		return apperrors.IOError(err1, "close commits store")
	}
	return apperrors.IOError(err2, "close changes store")
}

func commitKey(commitTS int64, commitOID string) []byte {
	k := make([]byte, 8+len(commitOID))
	binary.BigEndian.PutUint64(k[:8], uint64(commitTS))
	copy(k[8:], commitOID)
	return k
}

func changeKey(commitTS int64, entityID int64, seq uint32) []byte {
	k := make([]byte, 20)
	binary.BigEndian.PutUint64(k[0:8], uint64(commitTS))
	binary.BigEndian.PutUint64(k[8:16], uint64(entityID))
	binary.BigEndian.PutUint32(k[16:20], seq)
	return k
}

// PutCommit writes a single commit row and its secondary index entry.
func (cs *ColumnarStore) PutCommit(c models.Commit) error {
	val, err := json.Marshal(c)
	if err != nil {
		return apperrors.ParseError("marshal commit record")
	}
	pk := commitKey(c.CommitterTS, c.CommitOID)
	return apperrors.IOError(cs.commits.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketPrimary).Put(pk, val); err != nil {
			return err
		}
		return tx.Bucket(bucketByCommitOID).Put([]byte(c.CommitOID), pk)
	}), "put commit")
}

// PutChanges writes a batch of change rows belonging to one commit inside a
// single transaction, assigning each a sequence number to keep composite
// keys unique when multiple changes share a commit_ts/entity_id pair
// (re-touching the same file more than once across squashed history never
// happens in a single commit's diff, but the seq guards against it anyway).
func (cs *ColumnarStore) PutChanges(changes []models.Change) error {
	if len(changes) == 0 {
		return nil
	}
	return apperrors.IOError(cs.changes.Update(func(tx *bolt.Tx) error {
		primary := tx.Bucket(bucketPrimary)
		byOID := tx.Bucket(bucketByCommitOID)
		byEntity := tx.Bucket(bucketByEntityID)
		seqByKey := map[string]uint32{}

		for _, c := range changes {
			base := fmt.Sprintf("%d:%d", c.CommitTS, c.EntityID)
			seq := seqByKey[base]
			seqByKey[base] = seq + 1

			pk := changeKey(c.CommitTS, c.EntityID, seq)
			val, err := json.Marshal(c)
			if err != nil {
				return apperrors.ParseError("marshal change record")
			}
			if err := primary.Put(pk, val); err != nil {
				return err
			}

			oidIdx := append([]byte(c.CommitOID+"\x00"), pk...)
			if err := byOID.Put(oidIdx, pk); err != nil {
				return err
			}
			entIdx := make([]byte, 8+len(pk))
			binary.BigEndian.PutUint64(entIdx[:8], uint64(c.EntityID))
			copy(entIdx[8:], pk)
			if err := byEntity.Put(entIdx, pk); err != nil {
				return err
			}
		}
		return nil
	}), "put changes")
}

// ChangesForCommit returns every change row recorded under commitOID, via
// the by_commit_oid secondary index, ordered by primary key (commit_ts,
// then entity id, then seq) rather than by write order.
func (cs *ColumnarStore) ChangesForCommit(commitOID string) ([]models.Change, error) {
	var out []models.Change
	prefix := []byte(commitOID + "\x00")
	err := cs.changes.View(func(tx *bolt.Tx) error {
		primary := tx.Bucket(bucketPrimary)
		c := tx.Bucket(bucketByCommitOID).Cursor()
		for k, pk := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, pk = c.Next() {
			var ch models.Change
			if err := json.Unmarshal(primary.Get(pk), &ch); err != nil {
				return err
			}
			out = append(out, ch)
		}
		return nil
	})
	return out, apperrors.IOError(err, "changes for commit")
}

// ChangesForEntity returns every change row touching entityID, ordered by
// commit_ts ascending, via the by_entity_id secondary index.
func (cs *ColumnarStore) ChangesForEntity(entityID int64) ([]models.Change, error) {
	var out []models.Change
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, uint64(entityID))
	err := cs.changes.View(func(tx *bolt.Tx) error {
		primary := tx.Bucket(bucketPrimary)
		c := tx.Bucket(bucketByEntityID).Cursor()
		for k, pk := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, pk = c.Next() {
			var ch models.Change
			if err := json.Unmarshal(primary.Get(pk), &ch); err != nil {
				return err
			}
			out = append(out, ch)
		}
		return nil
	})
	return out, apperrors.IOError(err, "changes for entity")
}

// CommitsInRange iterates commits with committer_ts in [sinceTS, untilTS),
// exploiting the primary bucket's big-endian commit_ts prefix ordering
// instead of a full scan.
func (cs *ColumnarStore) CommitsInRange(sinceTS, untilTS int64) ([]models.Commit, error) {
	lo := make([]byte, 8)
	binary.BigEndian.PutUint64(lo, uint64(sinceTS))
	var out []models.Commit
	err := cs.commits.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPrimary).Cursor()
		for k, v := c.Seek(lo); k != nil; k, v = c.Next() {
			ts := int64(binary.BigEndian.Uint64(k[:8]))
			if ts >= untilTS {
				break
			}
			var cm models.Commit
			if err := json.Unmarshal(v, &cm); err != nil {
				return err
			}
			out = append(out, cm)
		}
		return nil
	})
	return out, apperrors.IOError(err, "commits in range")
}

// GetCommit looks up a single commit by OID via the by_commit_oid index.
func (cs *ColumnarStore) GetCommit(commitOID string) (*models.Commit, bool, error) {
	var cm models.Commit
	found := false
	err := cs.commits.View(func(tx *bolt.Tx) error {
		pk := tx.Bucket(bucketByCommitOID).Get([]byte(commitOID))
		if pk == nil {
			return nil
		}
		v := tx.Bucket(bucketPrimary).Get(pk)
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &cm)
	})
	if err != nil {
		return nil, false, apperrors.IOError(err, "get commit")
	}
	if !found {
		return nil, false, nil
	}
	return &cm, true, nil
}

func hasPrefix(b, prefix []byte) bool {
	return len(b) >= len(prefix) && string(b[:len(prefix)]) == string(prefix)
}

// Compact rewrites both bbolt files into fresh ones and swaps them in
// atomically (tmp-then-rename), reclaiming free-list space after a large
// extraction run. Uses a uuid-suffixed temp filename, consistent with the
// teacher's atomic-write convention in its cache writer. The live handles
// on cs are replaced with the reopened, compacted files.
func (cs *ColumnarStore) Compact() error {
	commits, err := compactFile(cs.commits, filepath.Join(cs.dir, "commits.bbolt"))
	if err != nil {
		return err
	}
	cs.commits = commits

	changes, err := compactFile(cs.changes, filepath.Join(cs.dir, "changes.bbolt"))
	if err != nil {
		return err
	}
	cs.changes = changes
	return nil
}

// compactFile builds a defragmented copy of db at a temp path, closes both
// the source and the copy, renames the copy into place, and reopens it —
// returning the new live handle the caller should use going forward.
func compactFile(db *bolt.DB, path string) (*bolt.DB, error) {
	tmpPath := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString())
	dst, err := bolt.Open(tmpPath, 0o644, nil)
	if err != nil {
		return nil, apperrors.IOErrorf(err, "open compaction target %s", tmpPath)
	}
	if err := bolt.Compact(dst, db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return nil, apperrors.IOErrorf(err, "compact %s", path)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, apperrors.IOErrorf(err, "close compaction target %s", tmpPath)
	}
	if err := db.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, apperrors.IOErrorf(err, "close source before swap %s", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, apperrors.IOErrorf(err, "rename %s into place", tmpPath)
	}
	reopened, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, apperrors.IOErrorf(err, "reopen compacted %s", path)
	}
	return reopened, nil
}
