package normalizer

type month struct {
	short, long string
}

var monthNames = []month{
	{"Jan", "January"}, {"Feb", "February"}, {"Mar", "March"}, {"Apr", "April"},
	{"May", "May"}, {"Jun", "June"}, {"Jul", "July"}, {"Aug", "August"},
	{"Sep", "September"}, {"Oct", "October"}, {"Nov", "November"}, {"Dec", "December"},
}

// domainTerms are spreadsheet column names, finance keywords and the
// question words the planner keys on.
var domainTerms = []string{
	// columns
	"gst", "cgst", "sgst", "igst", "amount", "total", "net", "gross", "date", "rowdate",
	"category", "subcategory", "description", "customer", "branch", "region",
	"state", "country", "discount", "value",
	// finance
	"tax", "tds", "vat", "revenue", "expense", "income", "balance", "refund",
	"deduction", "payment", "receipt", "invoice",
	// intents
	"trend", "compare", "breakdown", "summary", "summarize", "explain",
	"chart", "graph", "daily", "monthly", "between", "upload", "uploaded",
}
