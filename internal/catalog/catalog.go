// Package catalog stores admitted books. Records come from a finished scan
// session or from manual entry; both paths share the ISBN checksum rule.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/extractor"
	"github.com/anime-shed/bookscan-go/internal/isbn"
	"github.com/anime-shed/bookscan-go/internal/logger"
	"github.com/anime-shed/bookscan-go/internal/session"
)

const bookBucket = "books"

// Page size limits for Search
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ErrBookNotFound is wrapped by the not-found errors this package returns
var ErrBookNotFound = errors.New("book not found")

// RequiredFields must be present on a session before it can be admitted
var RequiredFields = []extractor.FieldName{extractor.FieldTitle, extractor.FieldAuthor, extractor.FieldISBN}

// Book is a catalog record
type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	ISBN      string    `json:"isbn,omitempty"`
	Price     float64   `json:"price"`
	Total     int       `json:"total"`
	Available int       `json:"available"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBook is the manual entry form
type NewBook struct {
	Title  string   `json:"title"`
	Author string   `json:"author"`
	ISBN   string   `json:"isbn,omitempty"`
	Price  *float64 `json:"price,omitempty"`
	Total  int      `json:"total"`
}

// Page is one page of search results
type Page struct {
	Books      []Book `json:"data"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
}

// Stats summarizes holdings
type Stats struct {
	Titles    int `json:"titles"`
	Available int `json:"available_books"`
	Borrowed  int `json:"borrowed_books"`
}

// Store keeps books as JSON values in a bbolt bucket
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// Open opens (or creates) the catalog database at path
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bookBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database file lock
func (s *Store) Close() error {
	return s.db.Close()
}

// Admit turns a scan session into a book with the given number of copies.
// Title, author and ISBN are required; a missing price is stored as 0.
func (s *Store) Admit(ctx context.Context, scan *session.ScanSession, copies int) (*Book, error) {
	if missing := scan.Missing(RequiredFields...); len(missing) > 0 {
		return nil, apperrors.NewValidationError("Session is missing required fields", nil).
			WithDetails("missing: " + strings.Join(missing, ", "))
	}

	nb := NewBook{
		Title:  *scan.Metadata.Title,
		Author: *scan.Metadata.Author,
		ISBN:   *scan.Metadata.ISBN,
		Price:  scan.Metadata.Price,
		Total:  copies,
	}
	if !isbn.Validate(nb.ISBN) {
		return nil, invalidISBN(nb.ISBN)
	}

	book, err := s.CreateBook(ctx, nb)
	if err != nil {
		return nil, err
	}
	logger.WithField("session_id", scan.ID).WithField("book_id", book.ID).Info("Scan session admitted to catalog")
	return book, nil
}

// CreateBook stores a manually entered book. An ISBN is optional but must
// pass the checksum when given.
func (s *Store) CreateBook(_ context.Context, nb NewBook) (*Book, error) {
	nb.Title = strings.TrimSpace(nb.Title)
	nb.Author = strings.TrimSpace(nb.Author)
	nb.ISBN = isbn.Clean(nb.ISBN)

	if nb.Title == "" || nb.Author == "" {
		return nil, apperrors.NewValidationError("Title and author are required", nil)
	}
	if nb.ISBN != "" && !isbn.Validate(nb.ISBN) {
		return nil, invalidISBN(nb.ISBN)
	}
	if nb.Total < 0 {
		return nil, apperrors.NewValidationError("Total copies must not be negative", nil)
	}
	if nb.Total == 0 {
		nb.Total = 1
	}
	var price float64
	if nb.Price != nil {
		if *nb.Price < 0 {
			return nil, apperrors.NewValidationError("Price must not be negative", nil)
		}
		price = *nb.Price
	}

	book := &Book{
		ID:        uuid.NewString(),
		Title:     nb.Title,
		Author:    nb.Author,
		ISBN:      nb.ISBN,
		Price:     price,
		Total:     nb.Total,
		Available: nb.Total,
		CreatedAt: s.now().UTC(),
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(book)
		if err != nil {
			return fmt.Errorf("marshaling book: %w", err)
		}
		return tx.Bucket([]byte(bookBucket)).Put([]byte(book.ID), data)
	})
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to store book", err)
	}
	return book, nil
}

// GetBook returns a not-found error for unknown ids
func (s *Store) GetBook(_ context.Context, id string) (*Book, error) {
	var book *Book
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bookBucket)).Get([]byte(id))
		if data == nil {
			return notFound(id)
		}
		return json.Unmarshal(data, &book)
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook removes a book, failing for unknown ids
func (s *Store) DeleteBook(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bookBucket))
		if bucket.Get([]byte(id)) == nil {
			return notFound(id)
		}
		return bucket.Delete([]byte(id))
	})
}

// ListBooks returns every book, oldest first
func (s *Store) ListBooks(_ context.Context) ([]Book, error) {
	books := make([]Book, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bookBucket)).ForEach(func(k, v []byte) error {
			var b Book
			if err := json.Unmarshal(v, &b); err != nil {
				return fmt.Errorf("unmarshaling book %s: %w", k, err)
			}
			books = append(books, b)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(books, func(i, j int) bool {
		if !books[i].CreatedAt.Equal(books[j].CreatedAt) {
			return books[i].CreatedAt.Before(books[j].CreatedAt)
		}
		return books[i].ID < books[j].ID
	})
	return books, nil
}

// Search matches keyword against title and author, ignoring case. An empty
// keyword matches everything. Pages are 1-based.
func (s *Store) Search(ctx context.Context, keyword string, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	all, err := s.ListBooks(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(keyword))
	matched := make([]Book, 0, len(all))
	for _, b := range all {
		if strings.Contains(strings.ToLower(b.Title), needle) || strings.Contains(strings.ToLower(b.Author), needle) {
			matched = append(matched, b)
		}
	}

	// Compare page counts first so a huge page number cannot overflow the offset
	start := len(matched)
	if page-1 <= len(matched)/pageSize {
		start = min((page-1)*pageSize, len(matched))
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	return &Page{
		Books:      matched[start:end],
		Total:      len(matched),
		Page:       page,
		TotalPages: (len(matched) + pageSize - 1) / pageSize,
	}, nil
}

// Stats counts titles and copies
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	books, err := s.ListBooks(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Titles: len(books)}
	for _, b := range books {
		st.Available += b.Available
		st.Borrowed += b.Total - b.Available
	}
	return st, nil
}

func notFound(id string) error {
	return apperrors.NewNotFoundError(fmt.Sprintf("book %s not found", id), ErrBookNotFound)
}

func invalidISBN(code string) error {
	return apperrors.NewValidationError("Invalid ISBN", nil).WithDetails(fmt.Sprintf("%q fails the ISBN-13 checksum", code))
}
