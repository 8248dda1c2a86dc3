package repository

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/pkg/validation"
)

type fakeFetcher struct {
	calls []string
	data  []byte
}

func (f *fakeFetcher) FetchImage(_ context.Context, u string) ([]byte, error) {
	f.calls = append(f.calls, u)
	return f.data, nil
}

type fakeBlobs struct {
	downloads []string
	err       error
}

func (f *fakeBlobs) Download(_ context.Context, u string) ([]byte, error) {
	f.downloads = append(f.downloads, u)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("blob"), nil
}

func (f *fakeBlobs) Upload(context.Context, string, string, []byte) error { return nil }

var _ = Describe("URLImageRepository", func() {
	var (
		fetcher *fakeFetcher
		blobs   *fakeBlobs
		repo    *URLImageRepository
		data    []byte
		err     error
		target  string
	)

	BeforeEach(func() {
		fetcher = &fakeFetcher{data: []byte("http")}
		blobs = &fakeBlobs{}
		repo = NewURLImageRepository(fetcher, blobs, validation.NewURLValidator())
	})

	JustBeforeEach(func() {
		data, err = repo.FetchImage(context.Background(), target)
	})

	When("the URL is a plain HTTP URL", func() {
		BeforeEach(func() { target = "https://example.com/cover.jpg" })

		It("should use the HTTP fetcher", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("http"))
			Expect(blobs.downloads).To(BeEmpty())
		})
	})

	When("the URL points at blob storage", func() {
		BeforeEach(func() { target = "https://acct.blob.core.windows.net/scans/cover.jpg" })

		It("should download through Azure", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("blob"))
			Expect(fetcher.calls).To(BeEmpty())
		})

		When("the download fails", func() {
			BeforeEach(func() { blobs.err = errors.New("403") })

			It("should report a network error", func() {
				Expect(apperrors.IsType(err, apperrors.ErrorTypeNetwork)).To(BeTrue())
			})
		})
	})

	When("the URL is invalid", func() {
		BeforeEach(func() { target = "ftp://example.com/cover.jpg" })

		It("should return a validation error", func() {
			Expect(apperrors.IsType(err, apperrors.ErrorTypeValidation)).To(BeTrue())
		})
	})
})
