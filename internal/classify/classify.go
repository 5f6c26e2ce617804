// Package classify turns a photo into a proposed inventory item. Backends
// talk to a vision model; the Service guarantees the capture flow always
// gets a usable result, degrading to a fixed placeholder when the model
// fails or returns garbage.
package classify

import (
	"context"
	"log/slog"
	"time"

	"snapshelf/internal/domain"
)

// Request carries one classification ask: the image, the locations the item
// may be filed into, and how to phrase the answer.
type Request struct {
	Image     []byte
	MIMEType  string
	Locations []domain.Location
	Language  string
	Model     string
	Caption   string
	Hint      string
}

// Result is a proposed item. Degraded marks the fixed fallback produced when
// the model could not be used.
type Result struct {
	Name              string
	Description       string
	SuggestedLocation string
	Degraded          bool
	Raw               string
}

// Backend performs the actual model call. Implementations build their prompt
// with BuildPrompt and parse the model text with ParseResult.
type Backend interface {
	Classify(ctx context.Context, req Request) (Result, error)
}

// Service wraps a Backend with the no-fail contract the capture flow relies
// on.
type Service struct {
	backend Backend
	logger  *slog.Logger
}

func NewService(backend Backend, logger *slog.Logger) *Service {
	return &Service{backend: backend, logger: logger}
}

// Analyze never returns an error: any backend failure or unparsable response
// degrades to the language-appropriate unknown-item result so the user can
// fix the fields by hand instead of losing the capture.
func (s *Service) Analyze(ctx context.Context, req Request) Result {
	start := time.Now()
	res, err := s.backend.Classify(ctx, req)
	if err != nil {
		s.logger.Warn("classification failed, using fallback result",
			"language", req.Language,
			"model", req.Model,
			"error", err,
		)
		return UnknownResult(req.Language, req.Locations)
	}
	s.logger.Info("image classified",
		"name", res.Name,
		"suggested_location", res.SuggestedLocation,
		"elapsed", time.Since(start),
	)
	return res
}

// unknownNames and unknownDescriptions are the fixed placeholder strings per
// language. English is the fallback for anything unlisted.
var unknownNames = map[string]string{
	"en": "Unknown item",
	"de": "Unbekannter Gegenstand",
	"fr": "Objet inconnu",
	"es": "Objeto desconocido",
	"ru": "Неизвестный предмет",
}

var unknownDescriptions = map[string]string{
	"en": "Failed to recognize the item",
	"de": "Gegenstand konnte nicht erkannt werden",
	"fr": "Échec de la reconnaissance de l'objet",
	"es": "No se pudo reconocer el objeto",
	"ru": "Не удалось распознать предмет",
}

// UnknownResult builds the degraded placeholder proposal. The first allowed
// location is suggested so downstream resolution still lands somewhere valid.
func UnknownResult(language string, locs []domain.Location) Result {
	name, ok := unknownNames[language]
	if !ok {
		name = unknownNames["en"]
	}
	desc, ok := unknownDescriptions[language]
	if !ok {
		desc = unknownDescriptions["en"]
	}
	res := Result{Name: name, Description: desc, Degraded: true}
	if len(locs) > 0 {
		res.SuggestedLocation = locs[0].Name
	}
	return res
}
