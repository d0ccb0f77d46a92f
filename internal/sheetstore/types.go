package sheetstore

// Remote actions understood by the Apps Script endpoint. All requests are
// plain GETs with the action in the query string so the browser-facing
// deployment never triggers a CORS preflight; this client mirrors that
// protocol exactly.
const (
	actionGetAllKeys = "GET_ALL_KEYS"
	actionValidate   = "VALIDATE_KEY"
	actionConsume    = "USE_KEY"
	actionCreate     = "CREATE_KEY"
)

// createdBy identifies this issuance channel in the remote ledger.
const createdBy = "WEB"

// KeyRecord is one row of the remote key ledger as returned by GET_ALL_KEYS.
// Timestamps travel as ISO 8601 strings; parsing is left to the caller so a
// single malformed row cannot fail an entire listing.
type KeyRecord struct {
	Code        string `json:"code"`
	Type        string `json:"type"`
	CreatedTime string `json:"createdTime"`
	Used        bool   `json:"used"`
	ValidUntil  string `json:"validUntil"`
}

// ValidateResult is the remote answer for VALIDATE_KEY. A pure read.
type ValidateResult struct {
	Exists     bool   `json:"exists"`
	Used       bool   `json:"used"`
	ValidUntil string `json:"validUntil"`
	UsageBonus int    `json:"usageBonus"`
	Type       string `json:"type"`
}

// CreateResult is the remote answer for CREATE_KEY.
type CreateResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ConsumeResult is the remote answer for USE_KEY. The remote store enforces
// first-consume-wins; Success is false when another consumer got there first.
type ConsumeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ListResult is the remote answer for GET_ALL_KEYS.
type ListResult struct {
	Success bool        `json:"success"`
	Keys    []KeyRecord `json:"keys"`
	Total   int         `json:"total"`
}
