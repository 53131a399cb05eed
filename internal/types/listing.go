package types

// NotAvailable is the placeholder written into fields an extractor could
// locate the card for but not the field itself.
const NotAvailable = "N/A"

// Listing is one product extracted from a search-result page.
type Listing struct {
	// Title is the product title as displayed by the source.
	Title string `json:"title" bson:"title"`

	// Price is kept in the source's own formatting, e.g. "R$ 1.299,00".
	Price string `json:"price" bson:"price"`

	// URL is the product page link.
	URL string `json:"url" bson:"url"`
}

// Useful reports whether at least one field carries data.
func (l Listing) Useful() bool {
	return l.Title != "" || l.Price != "" || l.URL != ""
}

// ToFlatMap returns a flat map suitable for CSV export.
func (l Listing) ToFlatMap() map[string]string {
	return map[string]string{
		"title": l.Title,
		"price": l.Price,
		"url":   l.URL,
	}
}
