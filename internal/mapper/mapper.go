// Package mapper projects a validated offer payload onto the canonical offer
// representation. Only the known offer fields are copied; everything else in
// the payload is dropped.
package mapper

import (
	"encoding/json"
	"fmt"
	"time"

	"offer-api/internal/models"
	"offer-api/internal/schema"
)

// InvariantError reports a payload that passed validation but cannot be
// mapped. It means the validator and the mapper disagree about the schema.
type InvariantError struct {
	Field string
	Err   error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("mapping %s: %v", e.Field, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// Normalize maps a validated payload to a canonical offer. It performs no I/O
// and does not assign an offer id unless the payload carries one.
func Normalize(payload map[string]any) (models.Offer, error) {
	m := &mapping{src: payload}

	offer := models.Offer{
		Base: models.Base{
			OfferID:             m.string("offer_id"),
			Type:                models.OfferType(m.string("type")),
			ProviderID:          m.string("provider_id"),
			Regions:             m.strings("regions"),
			Title:               m.string("title"),
			ValidFrom:           m.date("valid_from"),
			ValidUntil:          m.date("valid_until"),
			DeliveryDate:        m.date("delivery_date"),
			Status:              models.OfferStatus(m.string("status")),
			SplashPic:           m.splashPic("splash_pic"),
			HighresPicURL:       m.string("highres_pic_url"),
			TargetedCardNumbers: m.strings("targeted_card_numbers"),
			TermsAndConditions:  m.string("terms_and_conditions"),
		},
	}

	switch offer.Type {
	case models.OfferTypeCatalog:
		offer.Variant = &models.Catalog{
			IsFullscreen: m.boolPtr("is_fullscreen"),
			Pages:        m.pages("pages"),
		}
	case models.OfferTypeCoupon:
		offer.Variant = &models.Coupon{
			PicURL:         m.string("pic_url"),
			PicMetadataURL: m.string("pic_metadata_url"),
			Text:           m.string("text"),
			CouponCode:     m.string("coupon_code"),
			Barcode:        m.barcode("barcode"),
		}
	case models.OfferTypeOnlineCoupon:
		offer.Variant = &models.OnlineCoupon{
			PicURL:         m.string("pic_url"),
			PicMetadataURL: m.string("pic_metadata_url"),
			Text:           m.string("text"),
			AffiliateURL:   m.string("affiliate_url"),
			CouponCode:     m.string("coupon_code"),
		}
	default:
		m.fail("type", fmt.Errorf("%w: %q", schema.ErrUnknownSchema, string(offer.Type)))
	}

	if m.err != nil {
		return models.Offer{}, m.err
	}
	return offer, nil
}

// mapping reads typed values out of a payload and remembers the first
// mismatch.
type mapping struct {
	src    map[string]any
	prefix string
	err    error
}

func (m *mapping) child(key string, src map[string]any) *mapping {
	return &mapping{src: src, prefix: m.path(key)}
}

func (m *mapping) path(key string) string {
	if m.prefix == "" {
		return key
	}
	return m.prefix + "." + key
}

func (m *mapping) fail(key string, err error) {
	if m.err == nil {
		m.err = &InvariantError{Field: m.path(key), Err: err}
	}
}

func (m *mapping) adopt(c *mapping) {
	if m.err == nil && c.err != nil {
		m.err = c.err
	}
}

func (m *mapping) string(key string) string {
	v, ok := m.src[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		m.fail(key, fmt.Errorf("expected string, got %T", v))
	}
	return s
}

func (m *mapping) strings(key string) []string {
	v, ok := m.src[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		m.fail(key, fmt.Errorf("expected array, got %T", v))
		return nil
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			m.fail(fmt.Sprintf("%s[%d]", key, i), fmt.Errorf("expected string, got %T", item))
			continue
		}
		out = append(out, s)
	}
	return out
}

func (m *mapping) number(key string) float64 {
	v, ok := m.src[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			m.fail(key, err)
		}
		return f
	default:
		m.fail(key, fmt.Errorf("expected number, got %T", v))
		return 0
	}
}

func (m *mapping) boolPtr(key string) *bool {
	v, ok := m.src[key]
	if !ok {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		m.fail(key, fmt.Errorf("expected boolean, got %T", v))
		return nil
	}
	return &b
}

func (m *mapping) object(key string) (map[string]any, bool) {
	v, ok := m.src[key]
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		m.fail(key, fmt.Errorf("expected object, got %T", v))
		return nil, false
	}
	return obj, true
}

func (m *mapping) date(key string) time.Time {
	s := m.string(key)
	if s == "" {
		return time.Time{}
	}
	t, err := schema.ParseDate(s)
	if err != nil {
		m.fail(key, err)
	}
	return t
}

func (m *mapping) splashPic(key string) models.SplashPic {
	obj, ok := m.object(key)
	if !ok {
		return models.SplashPic{}
	}
	c := m.child(key, obj)
	pic := models.SplashPic{
		URL:    c.string("url"),
		Width:  c.number("width"),
		Height: c.number("height"),
	}
	m.adopt(c)
	return pic
}

func (m *mapping) barcode(key string) *models.Barcode {
	obj, ok := m.object(key)
	if !ok {
		return nil
	}
	c := m.child(key, obj)
	b := &models.Barcode{
		Content: c.string("content"),
		Format:  models.BarcodeFormat(c.string("format")),
	}
	m.adopt(c)
	return b
}

func (m *mapping) pages(key string) []models.Page {
	v, ok := m.src[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		m.fail(key, fmt.Errorf("expected array, got %T", v))
		return nil
	}
	pages := make([]models.Page, 0, len(items))
	for i, item := range items {
		elem := fmt.Sprintf("%s[%d]", key, i)
		obj, ok := item.(map[string]any)
		if !ok {
			m.fail(elem, fmt.Errorf("expected object, got %T", item))
			continue
		}
		c := m.child(elem, obj)
		pages = append(pages, models.Page{
			PicURL:         c.string("pic_url"),
			PicMetadataURL: c.string("pic_metadata_url"),
			HighresPicURL:  c.string("highres_pic_url"),
			Title:          c.string("title"),
			StoreURL:       c.string("store_url"),
		})
		m.adopt(c)
	}
	return pages
}
