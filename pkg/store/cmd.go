package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"

	bolt "go.etcd.io/bbolt"
	. "sophys.sh/cli/pkg/store/storedefs"
)

// ErrClosed is returned by queries on a store after Close.
var ErrClosed = errors.New("history database is closed")

func init() {
	initDB["create the command history bucket"] = func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketCmd))
		return err
	}
}

// Runs f with the history bucket in a read-only transaction.
func (s *dbStore) view(f func(b *bolt.Bucket) error) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return ErrClosed
	}
	return db.View(func(tx *bolt.Tx) error { return f(tx.Bucket([]byte(bucketCmd))) })
}

// Runs f with the history bucket in a read-write transaction.
func (s *dbStore) update(f func(b *bolt.Bucket) error) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return ErrClosed
	}
	return db.Update(func(tx *bolt.Tx) error { return f(tx.Bucket([]byte(bucketCmd))) })
}

// NextCmdSeq returns the sequence number the next recorded command will get.
func (s *dbStore) NextCmdSeq() (int, error) {
	var next int
	err := s.view(func(b *bolt.Bucket) error {
		next = int(b.Sequence()) + 1
		return nil
	})
	return next, err
}

// AddCmd records a command line. Blank lines and repeats of the last
// recorded line are not recorded again; the sequence number of the last
// line is returned for them.
func (s *dbStore) AddCmd(text string) (int, error) {
	var seq uint64
	err := s.update(func(b *bolt.Bucket) error {
		if strings.TrimSpace(text) == "" {
			seq = b.Sequence()
			return nil
		}
		if k, v := b.Cursor().Last(); k != nil && string(v) == text {
			seq = keySeq(k)
			return nil
		}
		var err error
		if seq, err = b.NextSequence(); err != nil {
			return err
		}
		return b.Put(seqKey(seq), []byte(text))
	})
	return int(seq), err
}

// DelCmd removes the command with the given sequence number. Removing a
// command that is not recorded fails with ErrNoMatchingCmd. Sequence numbers
// are never reused.
func (s *dbStore) DelCmd(seq int) error {
	return s.update(func(b *bolt.Bucket) error {
		k := seqKey(uint64(seq))
		if b.Get(k) == nil {
			return ErrNoMatchingCmd
		}
		return b.Delete(k)
	})
}

// Cmd returns the text of the command with the given sequence number.
func (s *dbStore) Cmd(seq int) (string, error) {
	var text string
	err := s.view(func(b *bolt.Bucket) error {
		v := b.Get(seqKey(uint64(seq)))
		if v == nil {
			return ErrNoMatchingCmd
		}
		text = string(v)
		return nil
	})
	return text, err
}

// IterateCmds calls f with the commands numbered in [from, upto), oldest
// first. Iteration stops early when f returns false.
func (s *dbStore) IterateCmds(from, upto int, f func(Cmd) bool) error {
	return s.view(func(b *bolt.Bucket) error {
		c := b.Cursor()
		for k, v := c.Seek(seqKey(uint64(max(from, 0)))); k != nil && keySeq(k) < uint64(upto); k, v = c.Next() {
			if !f(Cmd{Text: string(v), Seq: int(keySeq(k))}) {
				break
			}
		}
		return nil
	})
}

// CmdsWithSeq returns the commands numbered in [from, upto), oldest first.
func (s *dbStore) CmdsWithSeq(from, upto int) ([]Cmd, error) {
	var cmds []Cmd
	err := s.IterateCmds(from, upto, func(cmd Cmd) bool {
		cmds = append(cmds, cmd)
		return true
	})
	return cmds, err
}

// NextCmd returns the oldest command numbered from (inclusive) on that
// starts with prefix.
func (s *dbStore) NextCmd(from int, prefix string) (Cmd, error) {
	return s.search(prefix, func(c *bolt.Cursor) ([]byte, []byte) {
		return c.Seek(seqKey(uint64(max(from, 0))))
	}, (*bolt.Cursor).Next)
}

// PrevCmd returns the newest command numbered before upto (exclusive) that
// starts with prefix.
func (s *dbStore) PrevCmd(upto int, prefix string) (Cmd, error) {
	return s.search(prefix, func(c *bolt.Cursor) ([]byte, []byte) {
		if k, _ := c.Seek(seqKey(uint64(max(upto, 0)))); k == nil {
			return c.Last()
		}
		return c.Prev()
	}, (*bolt.Cursor).Prev)
}

// Walks the history from the position start puts the cursor at, in the
// direction of step, until a command starts with prefix.
func (s *dbStore) search(prefix string, start, step func(*bolt.Cursor) ([]byte, []byte)) (Cmd, error) {
	var cmd Cmd
	err := s.view(func(b *bolt.Bucket) error {
		c := b.Cursor()
		p := []byte(prefix)
		for k, v := start(c); k != nil; k, v = step(c) {
			if bytes.HasPrefix(v, p) {
				cmd = Cmd{Text: string(v), Seq: int(keySeq(k))}
				return nil
			}
		}
		return ErrNoMatchingCmd
	})
	return cmd, err
}

// Keys are big-endian sequence numbers, so that bbolt keeps them in order.
func seqKey(seq uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, seq)
}

func keySeq(k []byte) uint64 { return binary.BigEndian.Uint64(k) }
