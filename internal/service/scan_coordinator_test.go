package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/anime-shed/bookscan-go/internal/catalog"
	apperrors "github.com/anime-shed/bookscan-go/internal/errors"
	"github.com/anime-shed/bookscan-go/internal/imaging"
	"github.com/anime-shed/bookscan-go/internal/observer"
	"github.com/anime-shed/bookscan-go/internal/ocr"
	"github.com/anime-shed/bookscan-go/internal/ocr/ocrtest"
	"github.com/anime-shed/bookscan-go/internal/repository"
	"github.com/anime-shed/bookscan-go/internal/session"
	"github.com/anime-shed/bookscan-go/internal/worker"
)

func photo() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(100 + x), uint8(100 + y), 120, 255})
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var (
	coverRegions = []ocr.RawRegion{
		ocrtest.Box("《算法导论》", 10, 10, 300, 60, 0.95),
		ocrtest.Box("高等教育出版社", 10, 400, 300, 20, 0.9),
	}
	infoRegions = []ocr.RawRegion{
		ocrtest.Box("张三 主编", 10, 10, 200, 20, 0.9),
		ocrtest.Box("ISBN 978-7-04-019583-5", 10, 40, 300, 20, 0.9),
	}
	priceRegions = []ocr.RawRegion{
		ocrtest.Box("39.50", 200, 100, 80, 30, 0.9),
		ocrtest.Box("定价", 50, 100, 60, 30, 0.9),
	}
)

type recordingArchive struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingArchive) Download(context.Context, string) ([]byte, error) { return nil, nil }

func (r *recordingArchive) Upload(_ context.Context, container, name string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, container+"/"+name)
	return nil
}

func (r *recordingArchive) uploaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// stalledArchive blocks every upload until release is closed
type stalledArchive struct {
	recordingArchive
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stalledArchive) Upload(ctx context.Context, container, name string, data []byte) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.recordingArchive.Upload(ctx, container, name, data)
}

type fakeImages struct{ data []byte }

func (f fakeImages) FetchImage(context.Context, string) ([]byte, error) { return f.data, nil }

var _ = Describe("ScanCoordinator", func() {
	var (
		ctx         context.Context
		stub        *ocrtest.Stub
		sessions    *repository.MemorySessionRepository
		books       *catalog.Store
		metrics     *observer.MetricsObserver
		coordinator *ScanCoordinator
		deps        Dependencies
	)

	scan := func(step, id string, regions []ocr.RawRegion) (*ScanResult, error) {
		stub.SetRegions(regions...)
		return coordinator.Scan(ctx, ScanRequest{Image: photo(), Step: step, SessionID: id})
	}

	BeforeEach(func() {
		ctx = context.Background()
		stub = ocrtest.NewStub()
		sessions = repository.NewMemorySessionRepository()
		metrics = observer.NewMetricsObserver()

		var err error
		books, err = catalog.Open(filepath.Join(GinkgoT().TempDir(), "catalog.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(books.Close)

		events := observer.NewEventPublisher()
		events.Subscribe(metrics)

		deps = Dependencies{
			Sessions:   sessions,
			Normalizer: imaging.NewNormalizer(imaging.DefaultOptions(), nil),
			Reader:     ocr.NewExtractor(stub, time.Second),
			Catalog:    books,
			Events:     events,
		}
	})

	JustBeforeEach(func() {
		coordinator = NewScanCoordinator(deps)
		coordinator.ids = func() string { return "generated" }
	})

	Describe("a full cover, info and price session", func() {
		It("should accumulate every field and finish with no next step", func() {
			res, err := scan("cover", "", coverRegions)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.SessionID).To(Equal("generated"))
			Expect(*res.Metadata.Title).To(Equal("算法导论"))
			Expect(*res.NextStep).To(Equal(session.StepInfo))
			Expect(res.Hints).To(ContainElement("low_resolution"))

			res, err = scan("info", res.SessionID, infoRegions)
			Expect(err).NotTo(HaveOccurred())
			Expect(*res.Metadata.Title).To(Equal("算法导论"))
			Expect(*res.Metadata.Author).To(Equal("张三"))
			Expect(*res.Metadata.ISBN).To(Equal("9787040195835"))
			Expect(*res.NextStep).To(Equal(session.StepPrice))

			res, err = scan("PRICE", res.SessionID, priceRegions)
			Expect(err).NotTo(HaveOccurred())
			Expect(*res.Metadata.Price).To(Equal(39.5))
			Expect(res.NextStep).To(BeNil())
			Expect(res.CompletedSteps).To(Equal([]session.Step{session.StepCover, session.StepInfo, session.StepPrice}))

			Expect(metrics.Snapshot().ScansCompleted).To(Equal(int64(3)))
		})

		It("should produce identical metadata when a step is resubmitted", func() {
			first, err := scan("cover", "s1", coverRegions)
			Expect(err).NotTo(HaveOccurred())
			second, err := scan("cover", "s1", coverRegions)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Metadata).To(Equal(first.Metadata))
			Expect(second.CompletedSteps).To(Equal([]session.Step{session.StepCover}))
		})

		It("should accept steps out of order", func() {
			res, err := scan("price", "s1", priceRegions)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.NextStep).To(BeNil())
			Expect(res.Metadata.Title).To(BeNil())
		})
	})

	Describe("session ids", func() {
		It("should keep an unknown id the caller supplied", func() {
			res, err := scan("cover", "from-client", coverRegions)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.SessionID).To(Equal("from-client"))

			stored, err := coordinator.GetSession(ctx, "from-client")
			Expect(err).NotTo(HaveOccurred())
			Expect(*stored.Metadata.Title).To(Equal("算法导论"))
		})
	})

	Describe("failures", func() {
		It("should leave the session untouched when the ISBN checksum fails", func() {
			_, err := scan("cover", "s1", coverRegions)
			Expect(err).NotTo(HaveOccurred())

			_, err = scan("info", "s1", []ocr.RawRegion{
				ocrtest.Box("ABC PRESS 编", 10, 10, 200, 20, 0.9),
				ocrtest.Box("ISBN 978-7-04-012345-7", 10, 40, 300, 20, 0.9),
			})
			Expect(apperrors.IsType(err, apperrors.ErrorTypeIsbnChecksum)).To(BeTrue())
			Expect(apperrors.IsRetryable(err)).To(BeTrue())

			stored, err := coordinator.GetSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Metadata.Author).To(BeNil())
			Expect(stored.Metadata.ISBN).To(BeNil())
			Expect(stored.CompletedSteps).To(Equal([]session.Step{session.StepCover}))

			Expect(metrics.Snapshot().FailuresByType).To(HaveKeyWithValue("isbn_checksum", int64(1)))
		})

		It("should keep earlier fields when the price step fails", func() {
			_, err := scan("cover", "s1", coverRegions)
			Expect(err).NotTo(HaveOccurred())
			_, err = scan("info", "s1", infoRegions)
			Expect(err).NotTo(HaveOccurred())

			_, err = scan("price", "s1", []ocr.RawRegion{ocrtest.Box("高等教育出版社", 0, 0, 100, 20, 0.9)})
			Expect(apperrors.IsType(err, apperrors.ErrorTypePriceNotFound)).To(BeTrue())

			stored, err := coordinator.GetSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(*stored.Metadata.Title).To(Equal("算法导论"))
			Expect(*stored.Metadata.ISBN).To(Equal("9787040195835"))
			Expect(stored.Metadata.Price).To(BeNil())
		})

		It("should reject unknown steps before doing any work", func() {
			_, err := scan("back", "s1", coverRegions)
			Expect(apperrors.IsType(err, apperrors.ErrorTypeInvalidStep)).To(BeTrue())
			Expect(stub.Calls()).To(BeZero())
		})

		It("should report undecodable images without creating a session", func() {
			_, err := coordinator.Scan(ctx, ScanRequest{Image: []byte("not an image"), Step: "cover", SessionID: "s1"})
			Expect(apperrors.IsType(err, apperrors.ErrorTypeImageDecode)).To(BeTrue())

			_, err = sessions.Get(ctx, "s1")
			Expect(err).To(MatchError(repository.ErrSessionNotFound))
		})

		It("should report a cover with no text as a missing title", func() {
			_, err := scan("cover", "s1", nil)
			Expect(apperrors.IsType(err, apperrors.ErrorTypeTitleNotFound)).To(BeTrue())
		})

		It("should require an image", func() {
			_, err := coordinator.Scan(ctx, ScanRequest{Step: "cover"})
			Expect(apperrors.IsType(err, apperrors.ErrorTypeValidation)).To(BeTrue())
		})
	})

	Describe("concurrent calls for one session", func() {
		It("should reject the second call while the first is running", func() {
			stub.Gate = make(chan struct{})
			stub.SetRegions(coverRegions...)

			done := make(chan error, 1)
			go func() {
				_, err := coordinator.Scan(ctx, ScanRequest{Image: photo(), Step: "cover", SessionID: "s1"})
				done <- err
			}()
			Eventually(stub.Calls).Should(Equal(1))

			_, err := coordinator.Scan(ctx, ScanRequest{Image: photo(), Step: "info", SessionID: "s1"})
			Expect(apperrors.IsType(err, apperrors.ErrorTypeSessionBusy)).To(BeTrue())

			close(stub.Gate)
			Eventually(done).Should(Receive(BeNil()))
		})
	})

	Describe("image URLs", func() {
		BeforeEach(func() {
			deps.Images = fakeImages{data: photo()}
		})

		It("should fetch the photo when no bytes were uploaded", func() {
			stub.SetRegions(coverRegions...)
			res, err := coordinator.Scan(ctx, ScanRequest{ImageURL: "https://example.com/cover.png", Step: "cover"})
			Expect(err).NotTo(HaveOccurred())
			Expect(*res.Metadata.Title).To(Equal("算法导论"))
		})
	})

	Describe("archiving", func() {
		var archive *recordingArchive

		BeforeEach(func() {
			archive = &recordingArchive{}
			deps.Archive = &Archive{Store: archive, Container: "scans"}
		})

		It("should upload each submitted photo under the session", func() {
			_, err := scan("cover", "s1", coverRegions)
			Expect(err).NotTo(HaveOccurred())

			Eventually(archive.uploaded).Should(HaveLen(1))
			Expect(archive.uploaded()[0]).To(MatchRegexp(`^scans/s1/cover-\d+\.img$`))
		})
	})

	Describe("archiving while the upload pool is busy", func() {
		var stalled *stalledArchive

		BeforeEach(func() {
			stalled = &stalledArchive{started: make(chan struct{}), release: make(chan struct{})}
			deps.Archive = &Archive{Store: stalled, Container: "scans"}

			uploads, err := worker.NewUploadPool(1)
			Expect(err).NotTo(HaveOccurred())
			deps.Uploads = uploads
			DeferCleanup(func() {
				close(stalled.release)
				uploads.Close()
			})
		})

		It("should finish scans without waiting for the stalled upload", func() {
			_, err := scan("cover", "s1", coverRegions)
			Expect(err).NotTo(HaveOccurred())
			Eventually(stalled.started).Should(BeClosed())

			done := make(chan error, 1)
			go func() {
				_, err := scan("cover", "s2", coverRegions)
				done <- err
			}()
			Eventually(done, time.Second).Should(Receive(BeNil()))
			Expect(stalled.uploaded()).To(BeEmpty())
		})
	})

	Describe("Finalize", func() {
		It("should admit a complete session and delete it", func() {
			_, err := scan("cover", "s1", coverRegions)
			Expect(err).NotTo(HaveOccurred())
			_, err = scan("info", "s1", infoRegions)
			Expect(err).NotTo(HaveOccurred())

			book, err := coordinator.Finalize(ctx, "s1", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(book.Title).To(Equal("算法导论"))
			Expect(book.Total).To(Equal(2))
			Expect(book.Price).To(BeZero())

			_, err = coordinator.GetSession(ctx, "s1")
			Expect(apperrors.IsType(err, apperrors.ErrorTypeSessionNotFound)).To(BeTrue())
			Expect(metrics.Snapshot().SessionsFinalized).To(Equal(int64(1)))
		})

		It("should keep an incomplete session", func() {
			_, err := scan("cover", "s1", coverRegions)
			Expect(err).NotTo(HaveOccurred())

			_, err = coordinator.Finalize(ctx, "s1", 1)
			Expect(apperrors.IsType(err, apperrors.ErrorTypeValidation)).To(BeTrue())

			_, err = coordinator.GetSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should report unknown sessions", func() {
			_, err := coordinator.Finalize(ctx, "missing", 1)
			Expect(apperrors.IsType(err, apperrors.ErrorTypeSessionNotFound)).To(BeTrue())
		})
	})

	Describe("DeleteSession", func() {
		It("should remove a session and report unknown ids", func() {
			_, err := scan("cover", "s1", coverRegions)
			Expect(err).NotTo(HaveOccurred())

			Expect(coordinator.DeleteSession(ctx, "s1")).To(Succeed())
			err = coordinator.DeleteSession(ctx, "s1")
			var appErr *apperrors.AppError
			Expect(errors.As(err, &appErr)).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(404))
		})
	})
})
