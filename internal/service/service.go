package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"offer-api/internal/events"
	"offer-api/internal/logging"
	"offer-api/internal/mapper"
	"offer-api/internal/metrics"
	"offer-api/internal/models"
	"offer-api/internal/store"
	"offer-api/internal/tracing"
	"offer-api/internal/validation"
)

// Options configures a Service. Only PublicURL is required.
type Options struct {
	// PublicURL is the base that "offers/{id}" is resolved against.
	PublicURL string
	Events    *events.Manager
	Metrics   *metrics.Metrics
	Logger    logrus.FieldLogger
	// NewID generates offer ids. Defaults to random UUIDs.
	NewID func() string
}

// Service implements offer CRUD on top of a store.Store. Offers are stored
// as their canonical JSON encoding keyed by offer id.
type Service struct {
	store   store.Store
	baseURL *url.URL
	events  *events.Manager
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
	newID   func() string
}

// NewService creates a new service instance.
func NewService(st store.Store, opts Options) (*Service, error) {
	base, err := url.Parse(opts.PublicURL)
	if err != nil {
		return nil, fmt.Errorf("invalid public url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("public url %q must be absolute", opts.PublicURL)
	}

	s := &Service{
		store:   st,
		baseURL: base,
		events:  opts.Events,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		newID:   opts.NewID,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.events == nil {
		s.events = events.NewManager(false, s.logger)
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}
	return s, nil
}

// OfferURL resolves "offers/{id}" against the public URL.
func (s *Service) OfferURL(id string) string {
	return s.baseURL.ResolveReference(&url.URL{Path: "offers/" + id}).String()
}

// CreateOffer validates and stores a new offer under a freshly generated id.
func (s *Service) CreateOffer(ctx context.Context, payload map[string]any) (models.CreateOfferResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "OfferService.Create")
	defer span.End()

	id := s.newID()
	span.SetAttributes(attribute.String("offer.id", id))

	offer, err := s.canonical(ctx, payload, id)
	if err != nil {
		return models.CreateOfferResponse{}, s.fail(ctx, span, "create", err)
	}

	if err := s.put(ctx, offer); err != nil {
		return models.CreateOfferResponse{}, s.fail(ctx, span, "create", err)
	}

	s.logger.WithFields(logrus.Fields{
		"offer_id":   id,
		"offer_type": string(offer.Type),
	}).Info("CreateOffer: offer stored")
	s.events.PublishOffer(ctx, events.EventOfferCreated, offer)
	s.recordOperation(ctx, "create", true)

	return models.CreateOfferResponse{
		OfferID:  id,
		OfferURL: s.OfferURL(id),
	}, nil
}

// GetOffer returns the stored offer with its offer_url.
func (s *Service) GetOffer(ctx context.Context, id string) (models.OfferResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "OfferService.Get",
		trace.WithAttributes(attribute.String("offer.id", id)))
	defer span.End()

	resp, err := s.load(ctx, id)
	if err != nil {
		return models.OfferResponse{}, s.fail(ctx, span, "get", err)
	}

	s.recordOperation(ctx, "get", true)
	return resp, nil
}

// ReplaceOffer overwrites an existing offer with a full new payload. The
// stored offer keeps the path id regardless of any offer_id in the payload,
// and the payload must keep the stored type.
func (s *Service) ReplaceOffer(ctx context.Context, id string, payload map[string]any) error {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "OfferService.Replace",
		trace.WithAttributes(attribute.String("offer.id", id)))
	defer span.End()

	record, err := s.fetch(ctx, id)
	if err != nil {
		return s.fail(ctx, span, "replace", err)
	}

	offer, err := s.canonical(ctx, payload, id)
	if err != nil {
		return s.fail(ctx, span, "replace", err)
	}

	if err := validation.CheckImmutable(record, payload, "type"); err != nil {
		s.recordValidationFailure(ctx, string(offer.Type))
		return s.fail(ctx, span, "replace", err)
	}

	if err := s.put(ctx, offer); err != nil {
		return s.fail(ctx, span, "replace", err)
	}

	s.logger.WithField("offer_id", id).Info("ReplaceOffer: offer replaced")
	s.events.PublishOffer(ctx, events.EventOfferReplaced, offer)
	s.recordOperation(ctx, "replace", true)
	return nil
}

// DeleteOffer removes an offer. Deleting an unknown id succeeds.
func (s *Service) DeleteOffer(ctx context.Context, id string) error {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "OfferService.Delete",
		trace.WithAttributes(attribute.String("offer.id", id)))
	defer span.End()

	// Nothing can be stored under a non-uuid id, so there is nothing to
	// delete or audit.
	if !validID(id) {
		s.recordOperation(ctx, "delete", true)
		return nil
	}

	if err := s.store.Delete(ctx, id); err != nil {
		s.recordStoreError(ctx, "delete")
		return s.fail(ctx, span, "delete", &StoreError{Op: "delete", Key: id, Err: err})
	}

	s.logger.WithField("offer_id", id).Info("DeleteOffer: offer deleted")
	s.events.PublishOfferDeleted(ctx, id)
	s.recordOperation(ctx, "delete", true)
	return nil
}

// ListOffers returns every stored offer once, in the store's key order. Offers
// are read concurrently; the first failed read fails the whole list. An
// offer deleted between listing keys and reading it is left out.
func (s *Service) ListOffers(ctx context.Context) (models.ListOffersResponse, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "OfferService.List")
	defer span.End()

	keys, err := s.store.Keys(ctx)
	if err != nil {
		s.recordStoreError(ctx, "keys")
		return models.ListOffersResponse{}, s.fail(ctx, span, "list", &StoreError{Op: "keys", Err: err})
	}
	keys = dedupe(keys)
	span.SetAttributes(attribute.Int("offer.count", len(keys)))

	results := make([]*models.OfferResponse, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			resp, err := s.load(gctx, key)
			if errors.Is(err, ErrOfferNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = &resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.ListOffersResponse{}, s.fail(ctx, span, "list", err)
	}

	offers := make([]models.OfferResponse, 0, len(results))
	for _, r := range results {
		if r != nil {
			offers = append(offers, *r)
		}
	}

	s.recordOperation(ctx, "list", true)
	return models.ListOffersResponse{Offers: offers}, nil
}

// canonical validates a payload and maps it to a canonical offer with id.
func (s *Service) canonical(ctx context.Context, payload map[string]any, id string) (models.Offer, error) {
	if _, err := validation.ValidateOffer(payload); err != nil {
		var vErr *validation.ValidationError
		if errors.As(err, &vErr) {
			typ, _ := payload["type"].(string)
			s.recordValidationFailure(ctx, typ)
		}
		return models.Offer{}, err
	}

	offer, err := mapper.Normalize(payload)
	if err != nil {
		return models.Offer{}, err
	}
	offer.OfferID = id
	return offer, nil
}

func (s *Service) put(ctx context.Context, offer models.Offer) error {
	data, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("encode offer %s: %w", offer.OfferID, err)
	}
	if err := s.store.Put(ctx, offer.OfferID, data); err != nil {
		s.recordStoreError(ctx, "put")
		return &StoreError{Op: "put", Key: offer.OfferID, Err: err}
	}
	return nil
}

// fetch reads the raw stored record for id.
func (s *Service) fetch(ctx context.Context, id string) (map[string]any, error) {
	if !validID(id) {
		return nil, ErrOfferNotFound
	}

	data, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		s.recordStoreError(ctx, "get")
		return nil, &StoreError{Op: "get", Key: id, Err: err}
	}

	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &mapper.InvariantError{Field: "offer " + id, Err: err}
	}
	return record, nil
}

// load reads an offer and projects it through the same mapping as writes.
func (s *Service) load(ctx context.Context, id string) (models.OfferResponse, error) {
	record, err := s.fetch(ctx, id)
	if err != nil {
		return models.OfferResponse{}, err
	}

	offer, err := mapper.Normalize(record)
	if err != nil {
		return models.OfferResponse{}, err
	}
	offer.OfferID = id

	return models.OfferResponse{Offer: offer, OfferURL: s.OfferURL(id)}, nil
}

// fail records a failed operation on the span, metrics and log, and returns
// err unchanged.
func (s *Service) fail(ctx context.Context, span trace.Span, op string, err error) error {
	s.recordOperation(ctx, op, false)

	var vErr *validation.ValidationError
	switch {
	case errors.Is(err, ErrOfferNotFound), errors.As(err, &vErr), errors.Is(err, validation.ErrMalformedRequest):
		span.SetAttributes(attribute.String("offer.rejected", err.Error()))
		return err
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.WithError(err).WithField("operation", op).Error("offer operation failed")
	return err
}

func (s *Service) recordOperation(ctx context.Context, op string, ok bool) {
	if s.metrics != nil {
		s.metrics.RecordOperation(ctx, op, ok)
	}
}

func (s *Service) recordValidationFailure(ctx context.Context, offerType string) {
	if s.metrics != nil {
		s.metrics.RecordValidationFailure(ctx, offerType)
	}
}

func (s *Service) recordStoreError(ctx context.Context, op string) {
	if s.metrics != nil {
		s.metrics.RecordStoreError(ctx, op)
	}
}

// validID reports whether id can be an offer id at all. Offer ids are
// UUIDs; anything else can't name a stored offer.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// dedupe drops repeated keys, keeping the first occurrence.
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
