// Package offertest provides offer payloads for tests. Every constructor
// returns a fresh value shaped like decoded JSON, so callers may mutate it.
package offertest

func base(typ, title string) map[string]any {
	return map[string]any{
		"type":            typ,
		"provider_id":     "100",
		"regions":         []any{"de-BE", "de-HH"},
		"title":           title,
		"valid_from":      "2024-03-01T00:00:00Z",
		"valid_until":     "2024-03-31T23:59:59Z",
		"delivery_date":   "2024-02-28T08:00:00Z",
		"status":          "live",
		"highres_pic_url": "https://cdn.example.com/splash@2x.jpg",
		"splash_pic": map[string]any{
			"url":    "https://cdn.example.com/splash.jpg",
			"width":  float64(640),
			"height": float64(480),
		},
	}
}

// Catalog returns a valid catalog offer with two pages.
func Catalog(title string) map[string]any {
	p := base("catalog", title)
	p["is_fullscreen"] = true
	p["pages"] = []any{
		map[string]any{
			"pic_url":          "https://cdn.example.com/p1.jpg",
			"pic_metadata_url": "https://cdn.example.com/p1.json",
			"highres_pic_url":  "https://cdn.example.com/p1@2x.jpg",
			"title":            "Page one",
			"store_url":        "https://shop.example.com/1",
		},
		map[string]any{
			"pic_url":         "https://cdn.example.com/p2.jpg",
			"highres_pic_url": "https://cdn.example.com/p2@2x.jpg",
		},
	}
	return p
}

// Coupon returns a valid coupon offer with a barcode.
func Coupon(title string) map[string]any {
	p := base("coupon", title)
	p["pic_url"] = "https://cdn.example.com/coupon.jpg"
	p["text"] = "10% off everything"
	p["coupon_code"] = "SPRING10"
	p["terms_and_conditions"] = "One per customer."
	p["barcode"] = map[string]any{
		"format":  "EAN_13",
		"content": "4006381333931",
	}
	return p
}

// OnlineCoupon returns a valid online coupon offer.
func OnlineCoupon(title string) map[string]any {
	p := base("online_coupon", title)
	p["pic_url"] = "https://cdn.example.com/online.jpg"
	p["pic_metadata_url"] = "https://cdn.example.com/online.json"
	p["text"] = "Free shipping"
	p["affiliate_url"] = "https://partner.example.com/?ref=offers"
	p["coupon_code"] = "SHIPFREE"
	p["targeted_card_numbers"] = []any{"4000-1111", "4000-2222"}
	return p
}

// All returns one valid offer of every type.
func All() []map[string]any {
	return []map[string]any{
		Catalog("Fancy"),
		Coupon("Schmancy"),
		OnlineCoupon("Think different"),
	}
}
