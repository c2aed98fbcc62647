package session

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var sessionsBucket = []byte("sessions")

// BoltStore persists sessions in a local bbolt file so logins survive a
// restart of a single-node deployment.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "session: create bolt dir")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "session: open bolt %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "session: create bucket")
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Create(_ context.Context, s Session) error {
	if s.Token == "" {
		return ErrEmptyToken
	}
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "session: failed to marshal")
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(sessionsBucket)
		if bk.Get([]byte(s.Token)) != nil {
			return ErrTokenExists
		}
		return bk.Put([]byte(s.Token), data)
	})
}

func (b *BoltStore) Get(_ context.Context, token string) (*Session, error) {
	var s *Session
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get([]byte(token))
		if v == nil {
			return nil
		}
		s = new(Session)
		return json.Unmarshal(v, s)
	})
	if err != nil {
		return nil, errors.Wrap(err, "session: bolt get")
	}
	return s, nil
}

func (b *BoltStore) Delete(_ context.Context, token string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(token))
	})
}

func (b *BoltStore) Sweep(_ context.Context, now time.Time) (int, error) {
	n := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(sessionsBucket)
		var expired [][]byte
		err := bk.ForEach(func(k, v []byte) error {
			var s Session
			if err := json.Unmarshal(v, &s); err != nil || s.Expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := bk.Delete(k); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	return n, errors.Wrap(err, "session: bolt sweep")
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}
