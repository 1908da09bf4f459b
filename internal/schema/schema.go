// Package schema holds the declarative field tables that describe which offer
// shapes are accepted: one base schema shared by every offer and one schema per
// offer type.
package schema

import (
	"errors"
	"fmt"

	"offer-api/internal/models"
)

// ErrUnknownSchema is returned when no schema is registered for an offer type.
var ErrUnknownSchema = errors.New("unknown schema")

// Kind is the JSON kind a field value must have.
type Kind int

const (
	KindString Kind = iota + 1
	KindNumber
	KindBool
	KindDate
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindDate:
		return "ISO-8601 date string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field is a single constraint-table entry.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	// Enum restricts string values.
	Enum []string
	// Unique and MinItems apply to arrays.
	Unique   bool
	MinItems int
	// Elem describes array elements.
	Elem *Field
	// Fields describes the keys of an object.
	Fields []Field
}

// Schema is a named constraint table. Keys not listed in Fields are allowed.
type Schema struct {
	Name   string
	Fields []Field
}

// Base returns the schema every offer must satisfy.
func Base() Schema {
	return base
}

// ForType returns the variant schema for an offer type.
func ForType(t models.OfferType) (Schema, error) {
	s, ok := variants[t]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknownSchema, string(t))
	}
	return s, nil
}

// Types lists the offer types that have a variant schema.
func Types() []models.OfferType {
	return []models.OfferType{
		models.OfferTypeCatalog,
		models.OfferTypeCoupon,
		models.OfferTypeOnlineCoupon,
	}
}

func str(name string, required bool) Field {
	return Field{Name: name, Kind: KindString, Required: required}
}

func enum[T ~string](name string, values ...T) Field {
	f := Field{Name: name, Kind: KindString, Required: true}
	for _, v := range values {
		f.Enum = append(f.Enum, string(v))
	}
	return f
}

func stringSet(name string, required bool, minItems int) Field {
	return Field{
		Name:     name,
		Kind:     KindArray,
		Required: required,
		Unique:   true,
		MinItems: minItems,
		Elem:     &Field{Kind: KindString},
	}
}

var base = Schema{
	Name: "base",
	Fields: []Field{
		enum("type", Types()...),
		str("provider_id", true),
		stringSet("regions", true, 1),
		str("title", true),
		{Name: "valid_from", Kind: KindDate, Required: true},
		{Name: "valid_until", Kind: KindDate, Required: true},
		{Name: "delivery_date", Kind: KindDate, Required: true},
		enum("status",
			models.OfferStatusCreated,
			models.OfferStatusStaged,
			models.OfferStatusPending,
			models.OfferStatusDeleted,
			models.OfferStatusLive,
		),
		{
			Name:     "splash_pic",
			Kind:     KindObject,
			Required: true,
			Fields: []Field{
				{Name: "width", Kind: KindNumber, Required: true},
				{Name: "height", Kind: KindNumber, Required: true},
				str("url", true),
			},
		},
		str("highres_pic_url", true),
		stringSet("targeted_card_numbers", false, 0),
		str("terms_and_conditions", false),
	},
}

var catalog = Schema{
	Name: string(models.OfferTypeCatalog),
	Fields: []Field{
		{Name: "is_fullscreen", Kind: KindBool},
		{
			Name:     "pages",
			Kind:     KindArray,
			Required: true,
			MinItems: 1,
			Elem: &Field{
				Kind: KindObject,
				Fields: []Field{
					str("pic_url", true),
					str("pic_metadata_url", false),
					str("highres_pic_url", true),
					str("title", false),
					str("store_url", false),
				},
			},
		},
	},
}

var coupon = Schema{
	Name: string(models.OfferTypeCoupon),
	Fields: []Field{
		str("pic_url", true),
		str("pic_metadata_url", false),
		str("text", true),
		str("coupon_code", false),
		{
			Name: "barcode",
			Kind: KindObject,
			Fields: []Field{
				enum("format",
					models.BarcodeCode39,
					models.BarcodeCode93,
					models.BarcodeCode128,
					models.BarcodeDataMatrix,
					models.BarcodeEAN8,
					models.BarcodeEAN13,
					models.BarcodeITF,
					models.BarcodeQRCode,
					models.BarcodeUPCA,
				),
				str("content", true),
			},
		},
	},
}

var onlineCoupon = Schema{
	Name: string(models.OfferTypeOnlineCoupon),
	Fields: []Field{
		str("pic_url", true),
		str("pic_metadata_url", false),
		str("text", true),
		str("affiliate_url", true),
		str("coupon_code", true),
	},
}

var variants = map[models.OfferType]Schema{
	models.OfferTypeCatalog:      catalog,
	models.OfferTypeCoupon:       coupon,
	models.OfferTypeOnlineCoupon: onlineCoupon,
}
