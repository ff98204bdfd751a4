package app

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"

	"channel-quiz-service/internal/csvbank"
	"channel-quiz-service/internal/domain"
)

// DefaultImportName is used when neither a name nor a file name is given.
const DefaultImportName = "custom"

// AttachmentFetcher downloads an uploaded file.
type AttachmentFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Authorizer answers whether a caller holds the admin capability.
type Authorizer interface {
	IsAdmin(ctx context.Context, caller domain.Caller) (bool, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, caller domain.Caller) (bool, error)

func (f AuthorizerFunc) IsAdmin(ctx context.Context, caller domain.Caller) (bool, error) {
	return f(ctx, caller)
}

// CallerFlag trusts the Admin flag the host already set on the caller.
var CallerFlag = AuthorizerFunc(func(_ context.Context, caller domain.Caller) (bool, error) {
	return caller.Admin, nil
})

// ImportRequest describes a bank upload.
type ImportRequest struct {
	Caller   domain.Caller
	GroupID  string
	Name     string
	URL      string
	FileName string
}

// ImportResult summarizes a stored bank.
type ImportResult struct {
	Name    string   `json:"name"`
	Kept    int      `json:"kept"`
	Rows    int      `json:"rows"`
	Dropped int      `json:"dropped"`
	Headers []string `json:"headers"`
}

// Importer runs the privileged CSV import flow.
type Importer struct {
	auth    Authorizer
	fetcher AttachmentFetcher
	banks   *BankRegistry
}

func NewImporter(auth Authorizer, fetcher AttachmentFetcher, banks *BankRegistry) *Importer {
	return &Importer{auth: auth, fetcher: fetcher, banks: banks}
}

// Import authorizes the caller, downloads and parses the CSV and stores the bank.
func (i *Importer) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	admin, err := i.auth.IsAdmin(ctx, req.Caller)
	if err != nil {
		return ImportResult{}, fmt.Errorf("check admin: %w", err)
	}
	if !admin {
		return ImportResult{}, domain.ErrForbidden
	}

	raw, err := i.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: fetch attachment: %w", domain.ErrTransport, err)
	}
	return i.store(ctx, req, raw)
}

// ImportText is Import for callers that already hold the file contents.
func (i *Importer) ImportText(ctx context.Context, req ImportRequest, raw string) (ImportResult, error) {
	admin, err := i.auth.IsAdmin(ctx, req.Caller)
	if err != nil {
		return ImportResult{}, fmt.Errorf("check admin: %w", err)
	}
	if !admin {
		return ImportResult{}, domain.ErrForbidden
	}
	return i.store(ctx, req, raw)
}

func (i *Importer) store(ctx context.Context, req ImportRequest, raw string) (ImportResult, error) {
	parsed, err := csvbank.Parse(raw)
	if err != nil {
		return ImportResult{}, err
	}
	if len(parsed.Items) == 0 {
		return ImportResult{}, &domain.EmptyResultError{Headers: parsed.Meta.Headers, Rows: parsed.Meta.Rows}
	}

	name := BankName(req.Name, req.FileName)
	result := ImportResult{
		Name:    name,
		Kept:    len(parsed.Items),
		Rows:    parsed.Meta.Rows,
		Dropped: parsed.Meta.Rows - len(parsed.Items),
		Headers: parsed.Meta.Headers,
	}
	if err := i.banks.Put(ctx, req.GroupID, name, parsed.Items); err != nil {
		return result, err
	}
	log.Printf("imported bank %q into group %s: %d kept, %d dropped", name, req.GroupID, result.Kept, result.Dropped)
	return result, nil
}

// BankName picks the explicit name, else the file name without extension.
func BankName(name, fileName string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return DefaultImportName
	}
	return base
}
