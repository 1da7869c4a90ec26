// Package pebblestore keeps users, messages and reactions in an embedded
// Pebble database.
//
// Key layout:
//
//	u/<username>                               user JSON
//	m/<uuid>                                   message JSON (no reactions)
//	t/<len>:<thread>/<inverted ts><inverted seq> message uuid, newest first
//	r/<message uuid>/<username>                reaction JSON
//	meta/seq                                   last message sequence
package pebblestore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"linguachat/models"
	"linguachat/repository"

	"github.com/cockroachdb/pebble"
)

// Store is the Pebble backed repository.Store.
type Store struct {
	db *pebble.DB
	// mu serialises read-modify-write sequences (unique usernames, reaction
	// upserts, message sequence).
	mu  sync.Mutex
	seq uint64

	users     *userRepo
	messages  *messageRepo
	reactions *reactionRepo
}

var seqKey = []byte("meta/seq")

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	s := &Store{db: db}
	s.users = &userRepo{s: s}
	s.messages = &messageRepo{s: s}
	s.reactions = &reactionRepo{s: s}

	v, closer, err := db.Get(seqKey)
	switch {
	case err == nil:
		if len(v) == 8 {
			s.seq = binary.BigEndian.Uint64(v)
		}
		closer.Close()
	case errors.Is(err, pebble.ErrNotFound):
	default:
		db.Close()
		return nil, fmt.Errorf("read sequence: %w", err)
	}
	return s, nil
}

func (s *Store) Users() repository.UserRepository         { return s.users }
func (s *Store) Messages() repository.MessageRepository   { return s.messages }
func (s *Store) Reactions() repository.ReactionRepository { return s.reactions }
func (s *Store) Close() error                             { return s.db.Close() }

func userKey(username string) []byte { return []byte("u/" + username) }

func messageKey(id string) []byte { return []byte("m/" + id) }

func threadPrefix(a, b string) []byte {
	k := models.ThreadKey(a, b)
	return []byte(fmt.Sprintf("t/%d:%s/", len(k), k))
}

func threadKey(m *models.Message, seq uint64) []byte {
	key := threadPrefix(m.From, m.To)
	var suffix [16]byte
	binary.BigEndian.PutUint64(suffix[:8], uint64(math.MaxInt64-m.CreatedAt.UnixNano()))
	binary.BigEndian.PutUint64(suffix[8:], math.MaxUint64-seq)
	return append(key, suffix[:]...)
}

func reactionPrefix(messageUUID string) []byte { return []byte("r/" + messageUUID + "/") }

func reactionKey(messageUUID, username string) []byte {
	return append(reactionPrefix(messageUUID), username...)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *Store) getJSON(key []byte, out any) error {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return json.Unmarshal(v, out)
}

func (s *Store) has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

// errStopScan ends a scan early without failing it.
var errStopScan = errors.New("stop scan")

// scan calls fn for every key/value under prefix in key order until fn
// returns errStopScan. fn must not retain the slices.
func (s *Store) scan(prefix []byte, fn func(k, v []byte) error) error {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	for it.First(); it.Valid(); it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			it.Close()
			if errors.Is(err, errStopScan) {
				return nil
			}
			return err
		}
	}
	return it.Close()
}
