package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	TableSubcategory = "banka_sub_category"
	TableProduct     = "banka_product"

	FieldShowInCollection = "show_in_collection"
	FieldShowInPopular    = "show_in_popular"
	FieldShowInSpectrum   = "show_in_spectrum"
	FieldIsActive         = "is_active"
	FieldIsPopular        = "is_popular"
	FieldShowHide         = "show_hide"
)

// AvailableProductSizes lists the sizes a product can be offered in, in display order.
var AvailableProductSizes = []string{"XS", "S", "M", "L", "XL", "XXL", "Free Size"}

// Flag is a boolean attribute the backend encodes as 0/1, true/false or "0"/"1".
type Flag bool

func (flag *Flag) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if strings.EqualFold(trimmed, "true") {
		*flag = true
		return nil
	}
	number, parseErr := strconv.ParseFloat(trimmed, 64)
	*flag = Flag(parseErr == nil && number != 0)
	return nil
}

func (flag Flag) MarshalJSON() ([]byte, error) {
	if flag {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// Identifier accepts numeric or string encoded identifiers.
type Identifier int64

func (identifier *Identifier) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if trimmed == "" || trimmed == "null" {
		*identifier = 0
		return nil
	}
	parsed, parseErr := strconv.ParseInt(trimmed, 10, 64)
	if parseErr != nil {
		return parseErr
	}
	*identifier = Identifier(parsed)
	return nil
}

func (identifier Identifier) String() string {
	return strconv.FormatInt(int64(identifier), 10)
}

// StringList is a list of strings the backend stores as a JSON-encoded string column.
// Malformed values decode to an empty list.
type StringList []string

func (list *StringList) UnmarshalJSON(data []byte) error {
	*list = ParseStringList(data)
	return nil
}

func (list StringList) MarshalJSON() ([]byte, error) {
	if list == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(list))
}

// Encode renders the list the way the backend expects it inside a form field.
func (list StringList) Encode() string {
	encoded, _ := list.MarshalJSON()
	return string(encoded)
}

// ParseStringList parses either a JSON array or a JSON string holding a JSON array.
func ParseStringList(data []byte) StringList {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" || trimmed == `""` {
		return StringList{}
	}
	var direct []string
	if json.Unmarshal([]byte(trimmed), &direct) == nil {
		return StringList(direct)
	}
	var nested string
	if json.Unmarshal([]byte(trimmed), &nested) == nil {
		if json.Unmarshal([]byte(nested), &direct) == nil {
			return StringList(direct)
		}
	}
	return StringList{}
}

// Category is a top-level catalog grouping with its nested subcategories.
type Category struct {
	ID                      Identifier    `json:"id"`
	Name                    string        `json:"category"`
	Heading                 string        `json:"category_heading"`
	Description             string        `json:"category_description"`
	SEOKeywords             string        `json:"category_seo_keywords"`
	SEODescription          string        `json:"category_seo_description"`
	Banner                  string        `json:"category_banner"`
	MobileBanner            string        `json:"category_mobile_banner"`
	Thumbnail               string        `json:"category_thumbnail"`
	MobileThumbnail         string        `json:"category_mobile_thumbnail"`
	PopularPickBanner       string        `json:"category_popular_pick_banner"`
	MobilePopularPickBanner string        `json:"category_mobile_popular_pick_banner"`
	IsPopular               Flag          `json:"is_popular"`
	ShowHide                Flag          `json:"show_hide"`
	Subcategories           []Subcategory `json:"subcategories"`
}

// Subcategory groups products inside a category.
type Subcategory struct {
	ID                     Identifier `json:"id"`
	CategoryID             Identifier `json:"category_id"`
	Name                   string     `json:"sub_category"`
	Heading                string     `json:"sub_category_heading"`
	Description            string     `json:"sub_category_description"`
	SEOKeywords            string     `json:"sub_category_seo_keywords"`
	SEODescription         string     `json:"sub_category_seo_description"`
	Banner                 string     `json:"sub_category_banner"`
	Thumbnail              string     `json:"sub_category_thumbnail"`
	PLPBannerMobile        string     `json:"plp_banner_mobile"`
	CollectionBannerMobile string     `json:"collection_banner_mobile"`
	ShowInCollection       Flag       `json:"show_in_collection"`
	IsActive               Flag       `json:"is_active"`
}

// Product is a catalog item belonging to a subcategory.
type Product struct {
	ID               Identifier `json:"id"`
	SubcategoryID    Identifier `json:"sub_category_id"`
	Name             string     `json:"product_name"`
	Description      string     `json:"product_description"`
	ImageAlt         string     `json:"image_alt"`
	Image            string     `json:"product_image"`
	Video            string     `json:"product_video"`
	Colors           StringList `json:"color"`
	Sizes            StringList `json:"size"`
	MultipleImages   StringList `json:"multiple_images"`
	ShowInCollection Flag       `json:"show_in_collection"`
	ShowInPopular    Flag       `json:"show_in_popular"`
	ShowInSpectrum   Flag       `json:"show_in_spectrum"`
}

// CountSubcategoryFlag counts subcategories holding the named flag.
func CountSubcategoryFlag(subcategories []Subcategory, field string) int {
	count := 0
	for _, subcategory := range subcategories {
		if subcategory.FlagValue(field) {
			count++
		}
	}
	return count
}

// FlagValue returns the named boolean attribute.
func (subcategory Subcategory) FlagValue(field string) bool {
	switch field {
	case FieldShowInCollection:
		return bool(subcategory.ShowInCollection)
	case FieldIsActive:
		return bool(subcategory.IsActive)
	default:
		return false
	}
}

// CountProductFlag counts products holding the named flag.
func CountProductFlag(products []Product, field string) int {
	count := 0
	for _, product := range products {
		if product.FlagValue(field) {
			count++
		}
	}
	return count
}

// FlagValue returns the named boolean attribute.
func (product Product) FlagValue(field string) bool {
	switch field {
	case FieldShowInCollection:
		return bool(product.ShowInCollection)
	case FieldShowInPopular:
		return bool(product.ShowInPopular)
	case FieldShowInSpectrum:
		return bool(product.ShowInSpectrum)
	default:
		return false
	}
}
