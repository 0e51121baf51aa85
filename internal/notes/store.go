package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dayai/pkg/fsutil"
	"dayai/pkg/logging"
	pkgstrings "dayai/pkg/strings"
)

// snippetContext is how many characters are kept on each side of a search hit.
const snippetContext = 50

// ErrNotFound is returned when no note matches an ID or title.
var ErrNotFound = errors.New("note not found")

// Note is a single local note.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Match is a search hit.
type Match struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type notesFile struct {
	Notes []Note `json:"notes"`
}

// Store keeps notes in one JSON file, newest first.
type Store struct {
	mu    sync.Mutex
	path  string
	now   func() time.Time
	newID func() string
}

// NewStore returns a store backed by path. The file is created on the first
// write.
func NewStore(path string) *Store {
	return &Store{
		path:  path,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Path returns the notes file location.
func (s *Store) Path() string { return s.path }

// List returns all notes, newest first.
func (s *Store) List() ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	return data.Notes, nil
}

// Get returns the note with the given ID.
func (s *Store) Get(id string) (Note, error) {
	notes, err := s.List()
	if err != nil {
		return Note{}, err
	}
	for _, n := range notes {
		if n.ID == id {
			return n, nil
		}
	}
	return Note{}, ErrNotFound
}

// FindByTitle returns the first note whose title equals title, ignoring case.
func (s *Store) FindByTitle(title string) (Note, error) {
	notes, err := s.List()
	if err != nil {
		return Note{}, err
	}
	for _, n := range notes {
		if strings.EqualFold(n.Title, title) {
			return n, nil
		}
	}
	return Note{}, ErrNotFound
}

// Create adds a note at the top of the list.
func (s *Store) Create(title, content string) (Note, error) {
	if strings.TrimSpace(title) == "" {
		return Note{}, errors.New("title is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return Note{}, err
	}
	now := s.now().UTC()
	note := Note{
		ID:        s.newID(),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data.Notes = append([]Note{note}, data.Notes...)
	if err := s.save(data); err != nil {
		return Note{}, err
	}
	logging.Debug("Notes", "Created note %s", note.ID)
	return note, nil
}

// Update replaces the content of a note, and its title when title is not
// nil.
func (s *Store) Update(id, content string, title *string) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return Note{}, err
	}
	for i := range data.Notes {
		if data.Notes[i].ID != id {
			continue
		}
		data.Notes[i].Content = content
		if title != nil {
			data.Notes[i].Title = *title
		}
		data.Notes[i].UpdatedAt = s.now().UTC()
		if err := s.save(data); err != nil {
			return Note{}, err
		}
		return data.Notes[i], nil
	}
	return Note{}, ErrNotFound
}

// Delete removes a note.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	for i := range data.Notes {
		if data.Notes[i].ID == id {
			data.Notes = append(data.Notes[:i], data.Notes[i+1:]...)
			return s.save(data)
		}
	}
	return ErrNotFound
}

// Search returns notes whose title or content contains query, ignoring case.
func (s *Store) Search(query string) ([]Match, error) {
	notes, err := s.List()
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(query)
	matches := []Match{}
	for _, n := range notes {
		if !strings.Contains(strings.ToLower(n.Title), needle) && !strings.Contains(strings.ToLower(n.Content), needle) {
			continue
		}
		matches = append(matches, Match{
			ID:        n.ID,
			Title:     n.Title,
			Snippet:   pkgstrings.Excerpt(n.Content, query, snippetContext),
			UpdatedAt: n.UpdatedAt,
		})
	}
	return matches, nil
}

func (s *Store) load() (*notesFile, error) {
	data := &notesFile{}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read notes file %s: %w", s.path, err)
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to parse notes file %s: %w", s.path, err)
	}
	return data, nil
}

func (s *Store) save(data *notesFile) error {
	if data.Notes == nil {
		data.Notes = []Note{}
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode notes: %w", err)
	}
	return fsutil.WriteFileAtomic(s.path, raw, 0o600, 0o700)
}
