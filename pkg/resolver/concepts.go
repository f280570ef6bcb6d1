package resolver

import (
	"github.com/ekaya-inc/ekaya-insight/pkg/textmatch"
)

// Canonical concept names.
const (
	ConceptDate          = "date"
	ConceptAmount        = "amount"
	ConceptGSTAmount     = "gst_amount"
	ConceptNetAmount     = "net_amount"
	ConceptTotalAmount   = "total_amount"
	ConceptCGSTAmount    = "cgst_amount"
	ConceptSGSTAmount    = "sgst_amount"
	ConceptIGSTAmount    = "igst_amount"
	ConceptDiscount      = "discount"
	ConceptCustomer      = "customer"
	ConceptBranch        = "branch"
	ConceptRegion        = "region"
	ConceptCategory      = "category"
	ConceptSubcategory   = "subcategory"
	ConceptPaymentMethod = "payment_method"
	ConceptSalesPerson   = "sales_person"
	ConceptState         = "state"
	ConceptCountry       = "country"
)

// Concept is one entry of the fixed vocabulary.
//
// Variants are what a user types and are matched against the query.
// ColumnHints are spellings that only show up as spreadsheet headers ("dt",
// "gst_amt") and are used, together with Variants, to score columns. Words
// that are too generic to signal a concept in free text ("total", "value",
// "type") are hints only.
type Concept struct {
	Name        string
	Variants    []string
	ColumnHints []string
	Amount      bool // a summable metric
	Groupable   bool // a valid group-by key
}

// Concepts is the ordered concept table. Order matters: it breaks ties
// between overlapping mentions of equal length and fixes the order of
// Resolution.Mentioned for mentions at the same position.
var Concepts = []Concept{
	{
		Name:        ConceptDate,
		Variants:    []string{"date", "day", "transaction date", "bill date", "invoice date", "rowdate"},
		ColumnHints: []string{"dt", "txn date", "posting date", "voucher date"},
		Groupable:   true,
	},
	{
		Name:        ConceptAmount,
		Variants:    []string{"amount", "amt", "transaction amount"},
		ColumnHints: []string{"txn amount", "value"},
		Amount:      true,
	},
	{
		Name:        ConceptGSTAmount,
		Variants:    []string{"gst", "tax", "gst amount", "tax amount"},
		ColumnHints: []string{"gst amt", "tax amt"},
		Amount:      true,
	},
	{
		Name:        ConceptNetAmount,
		Variants:    []string{"net", "net value", "net amount"},
		ColumnHints: []string{"net amt"},
		Amount:      true,
	},
	{
		Name:        ConceptTotalAmount,
		Variants:    []string{"total value", "total amount", "gross", "gross amount"},
		ColumnHints: []string{"total", "gross value", "total amt"},
		Amount:      true,
	},
	{
		Name:     ConceptCGSTAmount,
		Variants: []string{"cgst", "cgst amount"},
		Amount:   true,
	},
	{
		Name:     ConceptSGSTAmount,
		Variants: []string{"sgst", "sgst amount"},
		Amount:   true,
	},
	{
		Name:     ConceptIGSTAmount,
		Variants: []string{"igst", "igst amount"},
		Amount:   true,
	},
	{
		Name:        ConceptDiscount,
		Variants:    []string{"discount", "discount amount", "disc"},
		ColumnHints: []string{"discount amt"},
		Amount:      true,
	},
	{
		Name: ConceptCustomer,
		Variants: []string{
			"customer", "party", "agency", "vendor", "supplier", "buyer", "dealer",
			"distributor", "customer name", "client name", "party name", "agency name",
			"vendor name", "supplier name",
		},
		ColumnHints: []string{"client", "agent name"},
		Groupable:   true,
	},
	{
		Name:        ConceptBranch,
		Variants:    []string{"branch", "office", "outlet", "office location", "branch name"},
		ColumnHints: []string{"location", "store"},
		Groupable:   true,
	},
	{
		Name:        ConceptRegion,
		Variants:    []string{"region", "zone", "territory", "region name"},
		ColumnHints: []string{"area"},
		Groupable:   true,
	},
	{
		Name:        ConceptCategory,
		Variants:    []string{"category", "transaction type", "category name"},
		ColumnHints: []string{"type", "cat"},
		Groupable:   true,
	},
	{
		Name:        ConceptSubcategory,
		Variants:    []string{"subcategory", "sub category", "subtype", "sub type", "transaction subtype"},
		ColumnHints: []string{"subcategory name"},
		Groupable:   true,
	},
	{
		Name:        ConceptPaymentMethod,
		Variants:    []string{"payment method", "payment mode"},
		ColumnHints: []string{"payment", "pay mode"},
		Groupable:   true,
	},
	{
		Name:        ConceptSalesPerson,
		Variants:    []string{"sales person", "salesperson", "sales executive", "executive"},
		ColumnHints: []string{"sales executive name"},
		Groupable:   true,
	},
	{
		Name:        ConceptState,
		Variants:    []string{"state"},
		ColumnHints: []string{"state name"},
		Groupable:   true,
	},
	{
		Name:        ConceptCountry,
		Variants:    []string{"country"},
		ColumnHints: []string{"country name"},
		Groupable:   true,
	},
}

// compiled is the matching form of the concept table, built once.
type compiledConcept struct {
	Concept
	index    int
	variants [][]string // query variants split into folded words
	keys     []string   // Key form of variants and hints, for column scoring
}

var (
	compiled      []compiledConcept
	conceptByName = map[string]*compiledConcept{}
	// ownerByKey maps an exact column key to the concept that spells it.
	ownerByKey = map[string]string{}
)

func init() {
	compiled = make([]compiledConcept, len(Concepts))
	for i, c := range Concepts {
		cc := compiledConcept{Concept: c, index: i}
		for _, v := range c.Variants {
			if words := textmatch.Words(v); len(words) > 0 {
				cc.variants = append(cc.variants, words)
			}
		}
		for _, form := range append(append([]string{c.Name}, c.Variants...), c.ColumnHints...) {
			key := textmatch.Key(form)
			if key == "" {
				continue
			}
			cc.keys = append(cc.keys, key)
			if _, taken := ownerByKey[key]; !taken {
				ownerByKey[key] = c.Name
			}
		}
		compiled[i] = cc
	}
	for i := range compiled {
		conceptByName[compiled[i].Name] = &compiled[i]
	}
}

// Lookup returns the concept with the given name.
func Lookup(name string) (Concept, bool) {
	cc, ok := conceptByName[name]
	if !ok {
		return Concept{}, false
	}
	return cc.Concept, true
}

// IsAmountConcept reports whether name is a summable metric concept.
func IsAmountConcept(name string) bool {
	c, ok := Lookup(name)
	return ok && c.Amount
}
