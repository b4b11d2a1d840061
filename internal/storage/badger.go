package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkfeed/internal/domain"
)

const (
	// ensureTokenAttempts bounds the read-after-insert retries when two writers race on one group.
	ensureTokenAttempts = 5
	// sequenceBandwidth is how many link IDs are leased from badger at once.
	sequenceBandwidth = 100
)

var (
	groupPrefix = []byte("group:")
	tokenPrefix = []byte("token:")
	linkPrefix  = []byte("link:")
	msgPrefix   = []byte("msg:")
	linkSeqKey  = []byte("seq:link")
)

// Options tune how the badger database is opened.
type Options struct {
	// InMemory keeps everything in memory. Path is ignored. Used by tests.
	InMemory bool
}

// BadgerRepository implements the Repository interface using BadgerDB.
type BadgerRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log logrus.FieldLogger
	now func() time.Time
}

// NewBadgerRepository creates and initializes a new BadgerDB repository.
// It opens the database at the specified path with synchronous writes, so a
// successful call is durable before it returns.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger, o Options) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath).WithSyncWrites(true)
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}

	seq, err := db.GetSequence(linkSeqKey, sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to lease link sequence: %w", err)
	}
	logger.WithField("path", dbPath).Info("BadgerDB opened")

	return &BadgerRepository{
		db:  db,
		seq: seq,
		log: logger.WithField("component", "repository"),
		now: time.Now,
	}, nil
}

// Close releases the link sequence and closes the BadgerDB database.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	if err := r.seq.Release(); err != nil {
		r.log.WithError(err).Warn("Error releasing link sequence")
	}
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

// chatKey escapes a chat ID so it can never contain the ':' key separator.
func chatKey(chatID string) []byte {
	return []byte(url.QueryEscape(chatID))
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func be64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// Format: group:{chat}
func groupKey(chatID string) []byte {
	return concat(groupPrefix, chatKey(chatID))
}

// Format: token:{token}
func tokenKey(token string) []byte {
	return concat(tokenPrefix, []byte(token))
}

// Format: link:{chat}:
func chatLinkPrefix(chatID string) []byte {
	return concat(linkPrefix, chatKey(chatID), []byte(":"))
}

// linkSuffix orders links of a chat by date, then by ID.
func linkSuffix(date time.Time, id uint64) []byte {
	return concat(be64(uint64(date.UnixNano())), be64(id))
}

// Format: msg:{chat}:{messageID}
func messagePrefix(chatID string, messageID int64) []byte {
	return concat(msgPrefix, chatKey(chatID), []byte(":"), be64(uint64(messageID)))
}

// EnsureToken returns the existing token for a chat or atomically creates one.
func (r *BadgerRepository) EnsureToken(ctx context.Context, chatID string) (string, error) {
	log := r.log.WithField("chat_id", chatID)

	for attempt := 1; attempt <= ensureTokenAttempts; attempt++ {
		var token string
		created := false
		err := r.db.Update(func(txn *badger.Txn) error {
			group, err := getGroup(txn, chatID)
			if err == nil {
				token = group.Token
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			group = domain.Group{
				ChatID:    chatID,
				Token:     uuid.NewString(),
				CreatedAt: r.now().UTC(),
			}
			groupBytes, err := json.Marshal(group)
			if err != nil {
				return fmt.Errorf("failed to marshal group: %w", err)
			}
			if err := txn.Set(groupKey(chatID), groupBytes); err != nil {
				return err
			}
			if err := txn.Set(tokenKey(group.Token), []byte(chatID)); err != nil {
				return err
			}
			token = group.Token
			created = true
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			// Another writer created the group first; the next attempt reads its token.
			log.WithField("attempt", attempt).Debug("Token creation raced, re-reading")
			continue
		}
		if err != nil {
			log.WithError(err).Error("Failed to ensure group token")
			return "", fmt.Errorf("failed to ensure token for chat %s: %w", chatID, err)
		}
		if created {
			log.Info("Issued new group token")
		}
		return token, nil
	}
	return "", fmt.Errorf("failed to ensure token for chat %s: %w", chatID, badger.ErrConflict)
}

func getGroup(txn *badger.Txn, chatID string) (domain.Group, error) {
	var group domain.Group
	item, err := txn.Get(groupKey(chatID))
	if err != nil {
		return group, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return group, err
	}
	if err := json.Unmarshal(val, &group); err != nil {
		return group, fmt.Errorf("failed to unmarshal group %s: %w", chatID, err)
	}
	return group, nil
}

// ResolveToken maps a token to its group.
func (r *BadgerRepository) ResolveToken(ctx context.Context, token string) (domain.Group, error) {
	var group domain.Group
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tokenKey(token))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrTokenNotFound
		}
		if err != nil {
			return err
		}
		chatID, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		group, err = getGroup(txn, string(chatID))
		return err
	})
	if errors.Is(err, ErrTokenNotFound) {
		return domain.Group{}, err
	}
	if err != nil {
		r.log.WithError(err).Error("Failed to resolve token")
		return domain.Group{}, fmt.Errorf("failed to resolve token: %w", err)
	}
	return group, nil
}

// AppendLink stores one link row and its message index entry in a single transaction.
func (r *BadgerRepository) AppendLink(ctx context.Context, chatID string, link domain.Link) (domain.Link, error) {
	log := r.log.WithFields(logrus.Fields{
		"chat_id":    chatID,
		"message_id": link.MessageID,
		"url":        link.URL,
	})

	id, err := r.seq.Next()
	if err != nil {
		log.WithError(err).Error("Failed to allocate link ID")
		return domain.Link{}, fmt.Errorf("failed to allocate link id: %w", err)
	}
	link.ID = id + 1
	link.ChatID = chatID
	if link.Date.IsZero() {
		link.Date = r.now()
	}

	linkBytes, err := json.Marshal(link)
	if err != nil {
		return domain.Link{}, fmt.Errorf("failed to marshal link: %w", err)
	}

	suffix := linkSuffix(link.Date, link.ID)
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(concat(chatLinkPrefix(chatID), suffix), linkBytes); err != nil {
			return err
		}
		return txn.Set(concat(messagePrefix(chatID, link.MessageID), suffix), []byte{})
	})
	if err != nil {
		log.WithError(err).Error("Failed to save link to BadgerDB")
		return domain.Link{}, fmt.Errorf("failed to save link: %w", err)
	}

	log.WithField("link_id", link.ID).Debug("Link saved")
	return link, nil
}

// RecentLinks returns up to limit links for a chat, ordered by date descending.
func (r *BadgerRepository) RecentLinks(ctx context.Context, chatID string, limit int) ([]domain.Link, error) {
	links := make([]domain.Link, 0, limit)
	if limit <= 0 {
		return links, nil
	}

	prefix := chatLinkPrefix(chatID)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek lands on the last key <= the seek key.
		seek := concat(prefix, bytes.Repeat([]byte{0xff}, 16))
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(links) < limit; it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var link domain.Link
				if err := json.Unmarshal(val, &link); err != nil {
					return fmt.Errorf("failed to unmarshal link data for key %q: %w", item.Key(), err)
				}
				links = append(links, link)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.log.WithError(err).WithField("chat_id", chatID).Error("Failed to retrieve links from BadgerDB")
		return nil, fmt.Errorf("failed to get links for chat %s: %w", chatID, err)
	}
	return links, nil
}

// PurgeMessage removes all links that a message contributed to a chat.
func (r *BadgerRepository) PurgeMessage(ctx context.Context, chatID string, messageID int64) (int, error) {
	log := r.log.WithFields(logrus.Fields{
		"chat_id":    chatID,
		"message_id": messageID,
	})

	prefix := messagePrefix(chatID, messageID)
	linksOf := chatLinkPrefix(chatID)
	removed := 0
	err := r.db.Update(func(txn *badger.Txn) error {
		var indexKeys [][]byte
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			indexKeys = append(indexKeys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range indexKeys {
			if err := txn.Delete(concat(linksOf, key[len(prefix):])); err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		removed = len(indexKeys)
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to purge message links")
		return 0, fmt.Errorf("failed to purge links of message %d in chat %s: %w", messageID, chatID, err)
	}
	if removed > 0 {
		log.WithField("removed", removed).Info("Purged links of edited message")
	}
	return removed, nil
}

// Stats counts links and groups with key-only iteration.
func (r *BadgerRepository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.db.View(func(txn *badger.Txn) error {
		s.Links = countPrefix(txn, linkPrefix)
		s.Groups = countPrefix(txn, groupPrefix)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return s, nil
}

func countPrefix(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

// RunGC reclaims value log space every interval until ctx is cancelled.
func (r *BadgerRepository) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		r.log.Info("BadgerDB GC disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := r.db.RunValueLogGC(0.7)
			switch {
			case err == nil:
				r.log.Info("BadgerDB GC completed")
			case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
				r.log.Debug("BadgerDB GC: no rewrite needed")
			default:
				r.log.WithError(err).Error("BadgerDB GC failed")
			}
		case <-ctx.Done():
			r.log.Info("Stopping BadgerDB GC routine")
			return
		}
	}
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
