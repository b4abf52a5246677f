// Package favorites persists a user's favorite titles and custom watch links
// in a local bbolt file. The whole state is loaded on Open and every change
// is written through before it becomes visible.
package favorites

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"freestream-gateway/internal/catalog"
)

var (
	bucketFavorites = []byte("favorites")
	bucketLinks     = []byte("custom_links")
)

var (
	ErrInvalidLink = errors.New("favorites: invalid link")
	ErrNotFound    = errors.New("favorites: not found")
)

// Favorite is the persisted shape of a favorite title.
type Favorite struct {
	ID      int64        `json:"id"`
	Title   string       `json:"title"`
	Year    catalog.Year `json:"year"`
	Type    string       `json:"type"`
	AddedAt time.Time    `json:"addedAt"`
}

// Link is a user supplied place to watch something.
type Link struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store keeps favorites and links in memory, backed by bbolt.
type Store struct {
	db  *bolt.DB
	now func() time.Time

	mu        sync.RWMutex
	favorites map[int64]Favorite
	links     map[string]Link
	onChange  func()
}

// Open loads (or creates) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create favorites dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open favorites db: %w", err)
	}

	s := &Store{
		db:        db,
		now:       time.Now,
		favorites: make(map[int64]Favorite),
		links:     make(map[string]Link),
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		favs, err := tx.CreateBucketIfNotExists(bucketFavorites)
		if err != nil {
			return err
		}
		links, err := tx.CreateBucketIfNotExists(bucketLinks)
		if err != nil {
			return err
		}

		err = favs.ForEach(func(k, v []byte) error {
			var f Favorite
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("decode favorite %x: %w", k, err)
			}
			s.favorites[f.ID] = f
			return nil
		})
		if err != nil {
			return err
		}

		return links.ForEach(func(k, v []byte) error {
			var l Link
			if err := json.Unmarshal(v, &l); err != nil {
				return fmt.Errorf("decode link %s: %w", k, err)
			}
			s.links[l.ID] = l
			return nil
		})
	})
}

// OnChange registers a hook run after every successful mutation.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) changed() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Toggle adds t when absent and removes it when present. It returns true
// when t is a favorite afterwards.
func (s *Store) Toggle(t catalog.Title) (bool, error) {
	s.mu.Lock()
	_, present := s.favorites[t.ID]

	key := idKey(t.ID)
	var fav Favorite
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFavorites)
		if present {
			return b.Delete(key)
		}
		fav = Favorite{ID: t.ID, Title: t.Title, Year: t.Year, Type: t.Type, AddedAt: s.now().UTC()}
		raw, err := json.Marshal(fav)
		if err != nil {
			return err
		}
		return b.Put(key, raw)
	})
	if err != nil {
		s.mu.Unlock()
		return present, fmt.Errorf("save favorite: %w", err)
	}

	if present {
		delete(s.favorites, t.ID)
	} else {
		s.favorites[t.ID] = fav
	}
	s.mu.Unlock()

	s.changed()
	return !present, nil
}

// Contains reports whether id is a favorite.
func (s *Store) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.favorites[id]
	return ok
}

// List returns favorites, most recently added first.
func (s *Store) List() []Favorite {
	s.mu.RLock()
	out := make([]Favorite, 0, len(s.favorites))
	for _, f := range s.favorites {
		out = append(out, f)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AddedAt.After(out[j].AddedAt)
	})
	return out
}

// AddLink validates and stores a custom link under a fresh id.
func (s *Store) AddLink(name, rawURL string) (Link, error) {
	name = strings.TrimSpace(name)
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if name == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Link{}, ErrInvalidLink
	}

	l := Link{ID: uuid.NewString(), Name: name, URL: u.String(), CreatedAt: s.now().UTC()}
	raw, err := json.Marshal(l)
	if err != nil {
		return Link{}, err
	}

	s.mu.Lock()
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLinks).Put([]byte(l.ID), raw)
	})
	if err == nil {
		s.links[l.ID] = l
	}
	s.mu.Unlock()
	if err != nil {
		return Link{}, fmt.Errorf("save link: %w", err)
	}

	s.changed()
	return l, nil
}

// RemoveLink deletes the link with id.
func (s *Store) RemoveLink(id string) error {
	s.mu.Lock()
	if _, ok := s.links[id]; !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLinks).Delete([]byte(id))
	})
	if err == nil {
		delete(s.links, id)
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}

	s.changed()
	return nil
}

// Links returns custom links, oldest first.
func (s *Store) Links() []Link {
	s.mu.RLock()
	out := make([]Link, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Close() error {
	return s.db.Close()
}

func idKey(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}
