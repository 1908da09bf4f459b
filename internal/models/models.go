package models

import (
	"encoding/json"
	"time"
)

// OfferType discriminates the offer variants.
type OfferType string

const (
	OfferTypeCatalog      OfferType = "catalog"
	OfferTypeCoupon       OfferType = "coupon"
	OfferTypeOnlineCoupon OfferType = "online_coupon"
)

// OfferStatus is the informational lifecycle status of an offer.
type OfferStatus string

const (
	OfferStatusCreated OfferStatus = "created"
	OfferStatusStaged  OfferStatus = "staged"
	OfferStatusPending OfferStatus = "pending"
	OfferStatusDeleted OfferStatus = "deleted"
	OfferStatusLive    OfferStatus = "live"
)

// BarcodeFormat is a supported barcode symbology.
type BarcodeFormat string

const (
	BarcodeCode39     BarcodeFormat = "CODE_39"
	BarcodeCode93     BarcodeFormat = "CODE_93"
	BarcodeCode128    BarcodeFormat = "CODE_128"
	BarcodeDataMatrix BarcodeFormat = "DATA_MATRIX"
	BarcodeEAN8       BarcodeFormat = "EAN_8"
	BarcodeEAN13      BarcodeFormat = "EAN_13"
	BarcodeITF        BarcodeFormat = "ITF"
	BarcodeQRCode     BarcodeFormat = "QR_CODE"
	BarcodeUPCA       BarcodeFormat = "UPC_A"
)

// Base holds the fields shared by every offer variant.
type Base struct {
	OfferID             string      `json:"offer_id"`
	Type                OfferType   `json:"type"`
	ProviderID          string      `json:"provider_id"`
	Regions             []string    `json:"regions"`
	Title               string      `json:"title"`
	ValidFrom           time.Time   `json:"valid_from"`
	ValidUntil          time.Time   `json:"valid_until"`
	DeliveryDate        time.Time   `json:"delivery_date"`
	Status              OfferStatus `json:"status"`
	SplashPic           SplashPic   `json:"splash_pic"`
	HighresPicURL       string      `json:"highres_pic_url"`
	TargetedCardNumbers []string    `json:"targeted_card_numbers,omitempty"`
	TermsAndConditions  string      `json:"terms_and_conditions,omitempty"`
}

// SplashPic is the teaser image of an offer.
type SplashPic struct {
	URL    string  `json:"url"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Variant is implemented by the type-specific part of an offer.
type Variant interface {
	OfferType() OfferType
}

// Catalog is a multi-page brochure offer.
type Catalog struct {
	IsFullscreen *bool `json:"is_fullscreen,omitempty"`
	Pages        []Page `json:"pages"`
}

// Page is a single catalog page.
type Page struct {
	PicURL         string `json:"pic_url"`
	PicMetadataURL string `json:"pic_metadata_url,omitempty"`
	HighresPicURL  string `json:"highres_pic_url"`
	Title          string `json:"title,omitempty"`
	StoreURL       string `json:"store_url,omitempty"`
}

// Coupon is an in-store coupon, optionally carrying a barcode.
type Coupon struct {
	PicURL         string   `json:"pic_url"`
	PicMetadataURL string   `json:"pic_metadata_url,omitempty"`
	Text           string   `json:"text"`
	CouponCode     string   `json:"coupon_code,omitempty"`
	Barcode        *Barcode `json:"barcode,omitempty"`
}

// Barcode is the scannable representation of a coupon.
type Barcode struct {
	Content string        `json:"content"`
	Format  BarcodeFormat `json:"format"`
}

// OnlineCoupon is a coupon redeemed through an affiliate link.
type OnlineCoupon struct {
	PicURL         string `json:"pic_url"`
	PicMetadataURL string `json:"pic_metadata_url,omitempty"`
	Text           string `json:"text"`
	AffiliateURL   string `json:"affiliate_url"`
	CouponCode     string `json:"coupon_code"`
}

func (*Catalog) OfferType() OfferType      { return OfferTypeCatalog }
func (*Coupon) OfferType() OfferType       { return OfferTypeCoupon }
func (*OnlineCoupon) OfferType() OfferType { return OfferTypeOnlineCoupon }

// Offer is the canonical representation of an offer: the shared base plus
// exactly one variant matching Base.Type. It is serialized as a single flat
// JSON object.
type Offer struct {
	Base
	Variant Variant
}

// MarshalJSON flattens the base and variant fields into one object.
func (o Offer) MarshalJSON() ([]byte, error) {
	fields, err := o.fields()
	if err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func (o Offer) fields() (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if err := mergeFields(fields, o.Base); err != nil {
		return nil, err
	}
	if o.Variant != nil {
		if err := mergeFields(fields, o.Variant); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

func mergeFields(dst map[string]json.RawMessage, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var src map[string]json.RawMessage
	if err := json.Unmarshal(data, &src); err != nil {
		return err
	}
	for k, raw := range src {
		dst[k] = raw
	}
	return nil
}

// OfferResponse is an offer enriched with its resource URL.
type OfferResponse struct {
	Offer
	OfferURL string
}

// MarshalJSON adds offer_url next to the offer fields.
func (r OfferResponse) MarshalJSON() ([]byte, error) {
	fields, err := r.Offer.fields()
	if err != nil {
		return nil, err
	}
	url, err := json.Marshal(r.OfferURL)
	if err != nil {
		return nil, err
	}
	fields["offer_url"] = url
	return json.Marshal(fields)
}

// CreateOfferResponse is the response payload for a created offer.
type CreateOfferResponse struct {
	OfferID  string `json:"offer_id"`
	OfferURL string `json:"offer_url"`
}

// ListOffersResponse is the response payload for listing offers.
type ListOffersResponse struct {
	Offers []OfferResponse `json:"offers"`
}

// Violation describes a single rejected field in an error response.
type Violation struct {
	Field   string `json:"field"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error      string      `json:"error"`
	Violations []Violation `json:"violations,omitempty"`
}
