package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/extractor"
	"github.com/anime-shed/bookscan-go/internal/session"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *Store
		clock time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = Open(filepath.Join(GinkgoT().TempDir(), "catalog.db"))
		Expect(err).NotTo(HaveOccurred())

		clock = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
		store.now = func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	Describe("Admit", func() {
		var scan *session.ScanSession

		BeforeEach(func() {
			scan = session.New("s1", clock)
		})

		When("every required field is present", func() {
			BeforeEach(func() {
				scan.Apply(session.StepCover, []extractor.Field{{Name: extractor.FieldTitle, Value: "算法导论"}}, clock)
				scan.Apply(session.StepInfo, []extractor.Field{
					{Name: extractor.FieldAuthor, Value: "张三"},
					{Name: extractor.FieldISBN, Value: "9787040195835"},
				}, clock)
			})

			It("should create a book with one copy and a zero price", func() {
				book, err := store.Admit(ctx, scan, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(book.ID).NotTo(BeEmpty())
				Expect(book.Title).To(Equal("算法导论"))
				Expect(book.ISBN).To(Equal("9787040195835"))
				Expect(book.Price).To(BeZero())
				Expect(book.Total).To(Equal(1))
				Expect(book.Available).To(Equal(1))

				stored, err := store.GetBook(ctx, book.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(stored).To(Equal(book))
			})

			It("should carry the scanned price and requested copies", func() {
				scan.Apply(session.StepPrice, []extractor.Field{{Name: extractor.FieldPrice, Value: "39.50", Number: 39.5}}, clock)

				book, err := store.Admit(ctx, scan, 3)
				Expect(err).NotTo(HaveOccurred())
				Expect(book.Price).To(Equal(39.5))
				Expect(book.Total).To(Equal(3))
			})
		})

		When("fields are missing", func() {
			It("should list them in a validation error", func() {
				scan.Apply(session.StepCover, []extractor.Field{{Name: extractor.FieldTitle, Value: "算法导论"}}, clock)

				_, err := store.Admit(ctx, scan, 1)
				var appErr *apperrors.AppError
				Expect(errors.As(err, &appErr)).To(BeTrue())
				Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
				Expect(appErr.Details).To(Equal("missing: author, isbn"))
			})
		})

		When("the stored ISBN fails the checksum", func() {
			It("should refuse the session", func() {
				scan.Apply(session.StepCover, []extractor.Field{{Name: extractor.FieldTitle, Value: "T"}}, clock)
				scan.Apply(session.StepInfo, []extractor.Field{
					{Name: extractor.FieldAuthor, Value: "A"},
					{Name: extractor.FieldISBN, Value: "9787040195836"},
				}, clock)

				_, err := store.Admit(ctx, scan, 1)
				Expect(apperrors.IsType(err, apperrors.ErrorTypeValidation)).To(BeTrue())

				books, err := store.ListBooks(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(books).To(BeEmpty())
			})
		})
	})

	Describe("CreateBook", func() {
		It("should accept a book without an ISBN", func() {
			book, err := store.CreateBook(ctx, NewBook{Title: " Dune ", Author: "Frank Herbert", Total: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(book.Title).To(Equal("Dune"))
			Expect(book.ISBN).To(BeEmpty())
			Expect(book.Available).To(Equal(2))
		})

		It("should normalize hyphenated ISBNs", func() {
			book, err := store.CreateBook(ctx, NewBook{Title: "T", Author: "A", ISBN: "978-0-306-40615-7"})
			Expect(err).NotTo(HaveOccurred())
			Expect(book.ISBN).To(Equal("9780306406157"))
		})

		DescribeTable("rejects invalid input",
			func(nb NewBook) {
				_, err := store.CreateBook(ctx, nb)
				Expect(apperrors.IsType(err, apperrors.ErrorTypeValidation)).To(BeTrue())
			},
			Entry("bad checksum", NewBook{Title: "T", Author: "A", ISBN: "9780306406158"}),
			Entry("short isbn", NewBook{Title: "T", Author: "A", ISBN: "978030640615"}),
			Entry("missing title", NewBook{Author: "A"}),
			Entry("missing author", NewBook{Title: "T"}),
			Entry("negative total", NewBook{Title: "T", Author: "A", Total: -1}),
		)
	})

	Describe("GetBook and DeleteBook", func() {
		It("should report unknown ids as not found", func() {
			_, err := store.GetBook(ctx, "nope")
			Expect(apperrors.IsType(err, apperrors.ErrorTypeNotFound)).To(BeTrue())
			Expect(err).To(MatchError(ErrBookNotFound))

			Expect(store.DeleteBook(ctx, "nope")).To(MatchError(ErrBookNotFound))
		})

		It("should delete an existing book", func() {
			book, err := store.CreateBook(ctx, NewBook{Title: "T", Author: "A"})
			Expect(err).NotTo(HaveOccurred())

			Expect(store.DeleteBook(ctx, book.ID)).To(Succeed())
			_, err = store.GetBook(ctx, book.ID)
			Expect(err).To(MatchError(ErrBookNotFound))
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			for _, nb := range []NewBook{
				{Title: "Go Programming", Author: "Alan Donovan"},
				{Title: "算法导论", Author: "Thomas Cormen"},
				{Title: "The Go Way", Author: "Someone"},
				{Title: "Cooking", Author: "GOrdon Ramsay"},
			} {
				_, err := store.CreateBook(ctx, nb)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should match title and author case-insensitively in insertion order", func() {
			page, err := store.Search(ctx, "go", 1, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(3))
			Expect(page.TotalPages).To(Equal(1))
			titles := []string{}
			for _, b := range page.Books {
				titles = append(titles, b.Title)
			}
			Expect(titles).To(Equal([]string{"Go Programming", "The Go Way", "Cooking"}))
		})

		It("should page results", func() {
			page, err := store.Search(ctx, "go", 2, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Books).To(HaveLen(1))
			Expect(page.Books[0].Title).To(Equal("Cooking"))
			Expect(page.TotalPages).To(Equal(2))

			page, err = store.Search(ctx, "go", 5, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Books).To(BeEmpty())
			Expect(page.Total).To(Equal(3))
		})

		It("should clamp bad paging parameters", func() {
			page, err := store.Search(ctx, "", 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Page).To(Equal(1))
			Expect(page.Books).To(HaveLen(4))
		})

		It("should return an empty page for page numbers far past the end", func() {
			var page *Page
			var err error
			Expect(func() { page, err = store.Search(ctx, "", 1<<62, MaxPageSize) }).NotTo(Panic())
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Books).To(BeEmpty())
			Expect(page.Total).To(Equal(4))
		})
	})

	Describe("Stats", func() {
		It("should sum copies across titles", func() {
			_, err := store.CreateBook(ctx, NewBook{Title: "A", Author: "B", Total: 3})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.CreateBook(ctx, NewBook{Title: "C", Author: "D"})
			Expect(err).NotTo(HaveOccurred())

			st, err := store.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st).To(Equal(Stats{Titles: 2, Available: 4, Borrowed: 0}))
		})
	})
})
