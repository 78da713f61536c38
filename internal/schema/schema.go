// Package schema holds the static schema registry for the retail dataset:
// column synonym mappings, required canonical columns, accepted date layouts,
// and the persisted schema version. It is pure data with no behavior beyond
// construction; the cleaner and loader consume it by value.
package schema

// Canonical column names used throughout the pipeline.
const (
	ColInvoice     = "invoice"
	ColStockCode   = "stock_code"
	ColDescription = "description"
	ColQuantity    = "quantity"
	ColInvoiceDate = "invoice_date"
	ColPrice       = "price"
	ColCustomerID  = "customer_id"
	ColCountry     = "country"
	ColTotalAmount = "total_amount"
)

// Sentinels substituted for missing values.
const (
	GuestCustomerID    = "GUEST"
	UnknownDescription = "UNKNOWN"
	OtherCategory      = "OTHER"
)

// Version is stamped on every persisted row as schema_version.
const Version = "1.0"

// Registry is the immutable schema configuration constructed once at startup
// and passed explicitly to the cleaner and loader.
type Registry struct {
	// Synonyms maps already-canonicalized labels (lowercase, underscore
	// separated) to their canonical column name. Labels not present pass
	// through unchanged.
	Synonyms map[string]string

	// Required lists the canonical columns that must exist after renaming.
	Required []string

	// DateLayouts are the time.Parse layouts attempted, in order, when
	// coercing invoice_date.
	DateLayouts []string
}

// Default returns the registry for the online-retail dataset.
func Default() Registry {
	return Registry{
		Synonyms: map[string]string{
			"customerid":   ColCustomerID,
			"customer_id":  ColCustomerID,
			"customer":     ColCustomerID,
			"invoiceno":    ColInvoice,
			"invoice_no":   ColInvoice,
			"invoice":      ColInvoice,
			"stockcode":    ColStockCode,
			"stock_code":   ColStockCode,
			"invoicedate":  ColInvoiceDate,
			"invoice_date": ColInvoiceDate,
			"unitprice":    ColPrice,
			"unit_price":   ColPrice,
			"price":        ColPrice,
			"quantity":     ColQuantity,
			"description":  ColDescription,
			"country":      ColCountry,
		},
		Required: []string{
			ColCustomerID, ColInvoice, ColStockCode,
			ColInvoiceDate, ColQuantity, ColPrice,
		},
		DateLayouts: []string{
			"2006-01-02 15:04:05",
			"2006-01-02T15:04:05",
			"2006-01-02T15:04:05Z07:00",
			"1/2/2006 15:04:05",
			"1/2/2006 15:04",
			"2006-01-02",
		},
	}
}
