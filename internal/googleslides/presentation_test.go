package googleslides

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/slides/v1"

	"github.com/smorand/slides-mirror/internal/ratelimit"
	"github.com/smorand/slides-mirror/internal/retry"
)

type mockSlidesService struct {
	GetPresentationFunc func(ctx context.Context, presentationID string) (*slides.Presentation, error)
	GetRevisionIDFunc   func(ctx context.Context, presentationID string) (string, error)
	GetThumbnailFunc    func(ctx context.Context, presentationID, pageObjectID string) (*slides.Thumbnail, error)
}

func (m *mockSlidesService) GetPresentation(ctx context.Context, presentationID string) (*slides.Presentation, error) {
	if m.GetPresentationFunc != nil {
		return m.GetPresentationFunc(ctx, presentationID)
	}
	return nil, errors.New("GetPresentation not mocked")
}

func (m *mockSlidesService) GetRevisionID(ctx context.Context, presentationID string) (string, error) {
	if m.GetRevisionIDFunc != nil {
		return m.GetRevisionIDFunc(ctx, presentationID)
	}
	return "", errors.New("GetRevisionID not mocked")
}

func (m *mockSlidesService) GetThumbnail(ctx context.Context, presentationID, pageObjectID string) (*slides.Thumbnail, error) {
	if m.GetThumbnailFunc != nil {
		return m.GetThumbnailFunc(ctx, presentationID, pageObjectID)
	}
	return nil, errors.New("GetThumbnail not mocked")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRetryer() *retry.Retryer {
	return retry.New(retry.Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Logger:       discardLogger(),
	})
}

func textBody(s string) *slides.TextContent {
	return &slides.TextContent{TextElements: []*slides.TextElement{
		{ParagraphMarker: &slides.ParagraphMarker{}},
		{TextRun: &slides.TextRun{Content: s}},
	}}
}

func notesPage(body string) *slides.Page {
	return &slides.Page{PageElements: []*slides.PageElement{
		{
			ObjectId: "slide-image",
			Shape:    &slides.Shape{Placeholder: &slides.Placeholder{Type: "SLIDE_IMAGE"}},
		},
		{
			ObjectId: "notes-body",
			Shape: &slides.Shape{
				Placeholder: &slides.Placeholder{Type: "BODY"},
				Text:        textBody(body),
			},
		},
	}}
}

func testDocument(revision string) *slides.Presentation {
	return &slides.Presentation{
		PresentationId: "pres-1",
		Title:          "Quarterly review",
		RevisionId:     revision,
		Slides: []*slides.Page{
			{
				ObjectId: "p1",
				PageElements: []*slides.PageElement{
					{
						ObjectId:  "title",
						Transform: &slides.AffineTransform{TranslateX: 12700, TranslateY: 25400, ScaleX: 2, ScaleY: 1, Unit: "EMU"},
						Size: &slides.Size{
							Width:  &slides.Dimension{Magnitude: 127000, Unit: "EMU"},
							Height: &slides.Dimension{Magnitude: 50, Unit: "PT"},
						},
						Shape: &slides.Shape{Text: textBody("Hello\n")},
					},
					{
						ObjectId: "group",
						ElementGroup: &slides.Group{Children: []*slides.PageElement{
							{ObjectId: "picture", Image: &slides.Image{}},
							{
								ObjectId: "table",
								Table: &slides.Table{TableRows: []*slides.TableRow{
									{TableCells: []*slides.TableCell{{Text: textBody("a")}, {Text: textBody("b")}}},
									{TableCells: []*slides.TableCell{{Text: textBody("c")}, {}}},
								}},
							},
						}},
					},
				},
				SlideProperties: &slides.SlideProperties{NotesPage: notesPage("Say hello\n")},
			},
			{
				ObjectId:        "p2",
				SlideProperties: &slides.SlideProperties{NotesPage: notesPage("  \n")},
			},
			{
				ObjectId: "p3",
			},
		},
	}
}

func openTestPresentation(t *testing.T, svc *mockSlidesService) *Presentation {
	t.Helper()
	if svc.GetPresentationFunc == nil {
		svc.GetPresentationFunc = func(ctx context.Context, id string) (*slides.Presentation, error) {
			return testDocument("rev-1"), nil
		}
	}
	p, err := Open(context.Background(), Config{
		PresentationID: "pres-1",
		Service:        svc,
		Retryer:        testRetryer(),
		Logger:         discardLogger(),
	})
	require.NoError(t, err)
	return p
}

func TestOpenValidation(t *testing.T) {
	_, err := Open(context.Background(), Config{Service: &mockSlidesService{}})
	assert.ErrorIs(t, err, ErrNoPresentationID)

	_, err = Open(context.Background(), Config{PresentationID: "x"})
	assert.ErrorIs(t, err, ErrNoService)

	notFound := &googleapi.Error{Code: http.StatusNotFound}
	_, err = Open(context.Background(), Config{
		PresentationID: "x",
		Service: &mockSlidesService{GetPresentationFunc: func(ctx context.Context, id string) (*slides.Presentation, error) {
			return nil, notFound
		}},
		Retryer: testRetryer(),
		Logger:  discardLogger(),
	})
	assert.ErrorIs(t, err, notFound)
}

func TestPresentationMetadata(t *testing.T) {
	p := openTestPresentation(t, &mockSlidesService{})

	assert.Equal(t, "Quarterly review", p.Name())
	assert.Equal(t, "pres-1", p.ID())
	assert.Equal(t, "https://docs.google.com/presentation/d/pres-1", p.Identity().Path)
	assert.Equal(t, "rev-1", p.Identity().Version)
	count, err := p.SlideCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSlideContent(t *testing.T) {
	p := openTestPresentation(t, &mockSlidesService{})

	content, err := p.SlideContent(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, content.Slide, 3)
	title := content.Slide[0]
	assert.Equal(t, 1.0, title.Left)
	assert.Equal(t, 2.0, title.Top)
	assert.Equal(t, 20.0, title.Width)
	assert.Equal(t, 50.0, title.Height)
	assert.True(t, title.HasText)
	assert.Equal(t, "Hello\n", title.Text)

	assert.False(t, content.Slide[1].HasText)
	assert.True(t, content.Slide[2].HasText)
	assert.Equal(t, "a\tb\nc\t", content.Slide[2].Text)

	require.Len(t, content.NotesPage, 2)
	assert.False(t, content.NotesPage[0].HasText)
	assert.Equal(t, "Say hello\n", content.NotesPage[1].Text)

	empty, err := p.SlideContent(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, empty.Slide)
	assert.Empty(t, empty.NotesPage)

	_, err = p.SlideContent(context.Background(), 4)
	assert.ErrorIs(t, err, ErrSlideOutOfRange)
	_, err = p.SlideContent(context.Background(), 0)
	assert.ErrorIs(t, err, ErrSlideOutOfRange)
}

func TestNotesText(t *testing.T) {
	p := openTestPresentation(t, &mockSlidesService{})

	tests := []struct {
		slide       int
		wantText    string
		wantPresent bool
	}{
		{slide: 1, wantText: "Say hello", wantPresent: true},
		{slide: 2, wantPresent: false},
		{slide: 3, wantPresent: false},
	}
	for _, tt := range tests {
		text, ok, err := p.NotesText(context.Background(), tt.slide)
		require.NoError(t, err)
		assert.Equal(t, tt.wantPresent, ok, "slide %d", tt.slide)
		assert.Equal(t, tt.wantText, text, "slide %d", tt.slide)
	}
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2)), nil))
	return buf.Bytes()
}

func TestExportSlideImage(t *testing.T) {
	pngData := encodePNG(t)
	jpegData := encodeJPEG(t)
	var failures atomic.Int32
	failures.Store(1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/p1.png":
			if failures.Add(-1) >= 0 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write(pngData)
		case "/p2.jpg":
			w.Write(jpegData)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var requested []string
	svc := &mockSlidesService{
		GetThumbnailFunc: func(ctx context.Context, presentationID, pageObjectID string) (*slides.Thumbnail, error) {
			requested = append(requested, pageObjectID)
			ext := ".png"
			if pageObjectID == "p2" {
				ext = ".jpg"
			}
			return &slides.Thumbnail{ContentUrl: srv.URL + "/" + pageObjectID + ext}, nil
		},
	}
	p := openTestPresentation(t, svc)

	data, err := p.ExportSlideImage(context.Background(), 1)
	require.NoError(t, err)
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 4, img.Bounds().Dx())

	data, err = p.ExportSlideImage(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, jpegData, data)

	_, err = p.ExportSlideImage(context.Background(), 3)
	var httpErr *retry.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)

	assert.Equal(t, []string{"p1", "p2", "p3"}, requested)
}

func TestExportSlideImageThumbnailFailure(t *testing.T) {
	calls := 0
	svc := &mockSlidesService{
		GetThumbnailFunc: func(ctx context.Context, presentationID, pageObjectID string) (*slides.Thumbnail, error) {
			calls++
			return nil, &googleapi.Error{Code: http.StatusTooManyRequests}
		},
	}
	p := openTestPresentation(t, svc)

	_, err := p.ExportSlideImage(context.Background(), 1)

	assert.ErrorIs(t, err, retry.ErrMaxRetriesExceeded)
	assert.Equal(t, 3, calls)
}

func TestToJPEGRejectsGarbage(t *testing.T) {
	_, err := toJPEG([]byte("not an image"), 90)
	assert.Error(t, err)
}

func TestReloadPicksUpNewRevision(t *testing.T) {
	revision := "rev-1"
	svc := &mockSlidesService{
		GetPresentationFunc: func(ctx context.Context, id string) (*slides.Presentation, error) {
			return testDocument(revision), nil
		},
	}
	p := openTestPresentation(t, svc)
	before := p.Identity()

	revision = "rev-2"
	require.NoError(t, p.Reload(context.Background()))

	assert.Equal(t, before.Path, p.Identity().Path)
	assert.Equal(t, "rev-2", p.Identity().Version)
}

func TestPresentationRateLimited(t *testing.T) {
	calls := 0
	svc := &mockSlidesService{
		GetPresentationFunc: func(ctx context.Context, id string) (*slides.Presentation, error) {
			return testDocument("rev-1"), nil
		},
		GetRevisionIDFunc: func(ctx context.Context, id string) (string, error) {
			calls++
			return "rev-1", nil
		},
	}
	p, err := Open(context.Background(), Config{
		PresentationID: "pres-1",
		Service:        svc,
		Retryer:        testRetryer(),
		Limiter: ratelimit.New(ratelimit.Config{
			Default: ratelimit.Rate{PerMinute: 1, Burst: 1},
			Logger:  discardLogger(),
		}),
		Logger: discardLogger(),
	})
	require.NoError(t, err)

	// Open used the only token; the next read waits about a minute.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.RemoteRevision(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, calls)
}
