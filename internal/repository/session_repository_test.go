package repository

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/anime-shed/bookscan-go/internal/extractor"
	"github.com/anime-shed/bookscan-go/internal/session"
)

func sessionRepositoryBehaviour(newRepo func() SessionRepository) {
	var (
		ctx  context.Context
		repo SessionRepository
		base time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newRepo()
		base = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	})

	AfterEach(func() {
		Expect(repo.Close()).To(Succeed())
	})

	Describe("Get", func() {
		When("the session does not exist", func() {
			It("should return ErrSessionNotFound", func() {
				_, err := repo.Get(ctx, "missing")
				Expect(err).To(MatchError(ErrSessionNotFound))
			})
		})

		When("the session was saved", func() {
			BeforeEach(func() {
				s := session.New("s1", base)
				s.Apply(session.StepCover, []extractor.Field{{Name: extractor.FieldTitle, Value: "算法导论"}}, base)
				s.Apply(session.StepPrice, []extractor.Field{{Name: extractor.FieldPrice, Value: "39.50", Number: 39.5}}, base)
				Expect(repo.Save(ctx, s)).To(Succeed())
			})

			It("should round-trip metadata and steps", func() {
				got, err := repo.Get(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(*got.Metadata.Title).To(Equal("算法导论"))
				Expect(*got.Metadata.Price).To(Equal(39.5))
				Expect(got.Metadata.ISBN).To(BeNil())
				Expect(got.CompletedSteps).To(Equal([]session.Step{session.StepCover, session.StepPrice}))
				Expect(got.CreatedAt.Equal(base)).To(BeTrue())
			})

			It("should hand out independent copies", func() {
				first, err := repo.Get(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				*first.Metadata.Title = "changed"

				second, err := repo.Get(ctx, "s1")
				Expect(err).NotTo(HaveOccurred())
				Expect(*second.Metadata.Title).To(Equal("算法导论"))
			})
		})
	})

	Describe("Delete", func() {
		It("should remove the session and ignore unknown ids", func() {
			Expect(repo.Save(ctx, session.New("s1", base))).To(Succeed())
			Expect(repo.Delete(ctx, "s1")).To(Succeed())
			Expect(repo.Delete(ctx, "never")).To(Succeed())

			_, err := repo.Get(ctx, "s1")
			Expect(err).To(MatchError(ErrSessionNotFound))
		})
	})

	Describe("List", func() {
		It("should order sessions by creation time", func() {
			Expect(repo.Save(ctx, session.New("late", base.Add(time.Hour)))).To(Succeed())
			Expect(repo.Save(ctx, session.New("early", base))).To(Succeed())

			all, err := repo.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
			Expect(all[0].ID).To(Equal("early"))
			Expect(all[1].ID).To(Equal("late"))
		})
	})

	Describe("PurgeBefore", func() {
		It("should remove only stale sessions", func() {
			Expect(repo.Save(ctx, session.New("stale", base))).To(Succeed())
			Expect(repo.Save(ctx, session.New("fresh", base.Add(2*time.Hour)))).To(Succeed())

			n, err := repo.PurgeBefore(ctx, base.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))

			_, err = repo.Get(ctx, "stale")
			Expect(err).To(MatchError(ErrSessionNotFound))
			_, err = repo.Get(ctx, "fresh")
			Expect(err).NotTo(HaveOccurred())
		})
	})
}

var _ = Describe("MemorySessionRepository", func() {
	sessionRepositoryBehaviour(func() SessionRepository {
		return NewMemorySessionRepository()
	})
})

var _ = Describe("BoltSessionRepository", func() {
	sessionRepositoryBehaviour(func() SessionRepository {
		repo, err := NewBoltSessionRepository(filepath.Join(GinkgoT().TempDir(), "sessions.db"))
		Expect(err).NotTo(HaveOccurred())
		return repo
	})

	It("should keep sessions across reopen", func() {
		path := filepath.Join(GinkgoT().TempDir(), "sessions.db")
		repo, err := NewBoltSessionRepository(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(repo.Save(context.Background(), session.New("kept", time.Now()))).To(Succeed())
		Expect(repo.Close()).To(Succeed())

		reopened, err := NewBoltSessionRepository(path)
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		got, err := reopened.Get(context.Background(), "kept")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal("kept"))
	})
})
