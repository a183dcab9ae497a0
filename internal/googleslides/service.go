// Package googleslides adapts a Google Slides presentation to the mirror's
// host interfaces. Slide images come from page thumbnails, notes from the
// BODY placeholder of each notes page, and the presentation revision drives
// the cache fingerprint.
package googleslides

import (
	"context"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/slides/v1"
)

// ThumbnailSize is the Slides API thumbnail size requested for exports.
const ThumbnailSize = "LARGE"

// SlidesService abstracts the Google Slides API for testing.
type SlidesService interface {
	GetPresentation(ctx context.Context, presentationID string) (*slides.Presentation, error)
	GetRevisionID(ctx context.Context, presentationID string) (string, error)
	GetThumbnail(ctx context.Context, presentationID, pageObjectID string) (*slides.Thumbnail, error)
}

// SlidesServiceFactory creates a Slides service from a token source.
type SlidesServiceFactory func(ctx context.Context, tokenSource oauth2.TokenSource) (SlidesService, error)

type realSlidesService struct {
	service *slides.Service
}

func (s *realSlidesService) GetPresentation(ctx context.Context, presentationID string) (*slides.Presentation, error) {
	return s.service.Presentations.Get(presentationID).Context(ctx).Do()
}

// GetRevisionID fetches only the revision field, which is enough to detect edits.
func (s *realSlidesService) GetRevisionID(ctx context.Context, presentationID string) (string, error) {
	p, err := s.service.Presentations.Get(presentationID).
		Fields("revisionId").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return p.RevisionId, nil
}

func (s *realSlidesService) GetThumbnail(ctx context.Context, presentationID, pageObjectID string) (*slides.Thumbnail, error) {
	return s.service.Presentations.Pages.GetThumbnail(presentationID, pageObjectID).
		ThumbnailPropertiesThumbnailSize(ThumbnailSize).
		ThumbnailPropertiesMimeType("PNG").
		Context(ctx).
		Do()
}

// NewRealSlidesServiceFactory returns a factory that creates real Slides services.
func NewRealSlidesServiceFactory() SlidesServiceFactory {
	return func(ctx context.Context, tokenSource oauth2.TokenSource) (SlidesService, error) {
		service, err := slides.NewService(ctx, option.WithTokenSource(tokenSource))
		if err != nil {
			return nil, err
		}
		return &realSlidesService{service: service}, nil
	}
}
