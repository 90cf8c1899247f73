// Package catalog talks to the print-on-demand catalog: it uploads design
// images and creates unpublished draft listings from them. The wire format
// follows the Printify v1 REST API.
package catalog

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"draftdrop/internal/config"
	"draftdrop/internal/services"
)

const (
	defaultBaseURL     = "https://api.printify.com"
	defaultHTTPTimeout = 60 * time.Second
	maxAutoVariants    = 100
	userAgent          = "draftdrop"
	maxErrorBodyRunes  = 200
)

// HTTPDoer describes the HTTP client used by the catalog client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Draft is the listing content attached to an uploaded image.
type Draft struct {
	Title       string
	Description string
	Bullets     []string
	Tags        []string
}

// ListingDescription is the description sent to the catalog: the
// description, then one "• " line per bullet.
func (d Draft) ListingDescription() string {
	if len(d.Bullets) == 0 {
		return d.Description
	}
	var b strings.Builder
	b.WriteString(d.Description)
	for _, bullet := range d.Bullets {
		b.WriteString("\n• ")
		b.WriteString(bullet)
	}
	return b.String()
}

// Client is a catalog API client. It is safe for concurrent use.
type Client struct {
	baseURL         string
	token           string
	shopID          string
	blueprintID     int
	printProviderID int
	priceCents      int
	variantIDs      []int
	client          HTTPDoer

	variantsMu sync.Mutex
	variants   []int
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// NewClient returns a catalog client. Missing credentials are reported as
// configuration errors when an operation is attempted.
func NewClient(cfg config.Catalog, opts ...Option) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		baseURL:         baseURL,
		token:           strings.TrimSpace(cfg.APIToken),
		shopID:          strings.TrimSpace(cfg.ShopID),
		blueprintID:     cfg.BlueprintID,
		printProviderID: cfg.PrintProviderID,
		priceCents:      cfg.PriceCents,
		variantIDs:      append([]int(nil), cfg.VariantIDs...),
		client:          &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload stores the image with the catalog and returns its image id.
func (c *Client) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	const stage = "upload"
	if c.token == "" {
		return "", services.Wrap(services.ErrConfiguration, stage, "init", "catalog api token not configured", nil)
	}
	if len(data) == 0 {
		return "", services.Wrap(services.ErrUpload, stage, "validate", "image is empty", nil)
	}
	body := uploadRequest{
		FileName: strings.TrimSpace(filename),
		Contents: base64.StdEncoding.EncodeToString(data),
	}
	var resp uploadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/uploads/images.json", body, &resp); err != nil {
		return "", services.Wrap(services.ErrUpload, stage, "upload image", "", err)
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", services.Wrap(services.ErrUpload, stage, "upload image", "response missing image id", nil)
	}
	return resp.ID, nil
}

// CreateDraft creates an unpublished product that prints imageID on the
// front of every enabled variant and returns the product id.
func (c *Client) CreateDraft(ctx context.Context, imageID string, draft Draft) (string, error) {
	const stage = "draft"
	if err := c.draftConfigError(); err != nil {
		return "", err
	}
	imageID = strings.TrimSpace(imageID)
	if imageID == "" {
		return "", services.Wrap(services.ErrDraft, stage, "validate", "image id is empty", nil)
	}
	if strings.TrimSpace(draft.Title) == "" {
		return "", services.Wrap(services.ErrDraft, stage, "validate", "title is empty", nil)
	}
	variantIDs, err := c.resolveVariants(ctx)
	if err != nil {
		return "", services.Wrap(services.ErrDraft, stage, "list variants", "", err)
	}
	body := c.productRequest(imageID, draft, variantIDs)
	var resp productResponse
	path := "/v1/shops/" + url.PathEscape(c.shopID) + "/products.json"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", services.Wrap(services.ErrDraft, stage, "create product", "", err)
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", services.Wrap(services.ErrDraft, stage, "create product", "response missing product id", nil)
	}
	return resp.ID, nil
}

func (c *Client) draftConfigError() error {
	var missing []string
	if c.token == "" {
		missing = append(missing, "api token")
	}
	if c.shopID == "" {
		missing = append(missing, "shop id")
	}
	if c.blueprintID <= 0 {
		missing = append(missing, "blueprint id")
	}
	if c.printProviderID <= 0 {
		missing = append(missing, "print provider id")
	}
	if len(missing) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "draft", "init",
		"catalog "+strings.Join(missing, ", ")+" not configured", nil)
}

func (c *Client) productRequest(imageID string, draft Draft, variantIDs []int) productRequest {
	variants := make([]productVariant, 0, len(variantIDs))
	for _, id := range variantIDs {
		variants = append(variants, productVariant{ID: id, Price: c.priceCents, IsEnabled: true})
	}
	return productRequest{
		Title:           strings.TrimSpace(draft.Title),
		Description:     draft.ListingDescription(),
		Tags:            draft.Tags,
		BlueprintID:     c.blueprintID,
		PrintProviderID: c.printProviderID,
		Variants:        variants,
		PrintAreas: []printArea{{
			VariantIDs: variantIDs,
			Placeholders: []placeholder{{
				Position: "front",
				Images:   []placedImage{{ID: imageID, X: 0.5, Y: 0.5, Scale: 1, Angle: 0}},
			}},
		}},
	}
}

// resolveVariants returns the configured variant ids, or the first variants
// the print provider offers for the blueprint. The lookup is cached for the
// client's lifetime once it succeeds.
func (c *Client) resolveVariants(ctx context.Context) ([]int, error) {
	if len(c.variantIDs) > 0 {
		return c.variantIDs, nil
	}
	c.variantsMu.Lock()
	defer c.variantsMu.Unlock()
	if len(c.variants) > 0 {
		return c.variants, nil
	}
	path := fmt.Sprintf("/v1/catalog/blueprints/%d/print_providers/%d/variants.json", c.blueprintID, c.printProviderID)
	var resp variantsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	ids := make([]int, 0, min(len(resp.Variants), maxAutoVariants))
	for _, v := range resp.Variants {
		if v.ID <= 0 {
			continue
		}
		ids = append(ids, v.ID)
		if len(ids) == maxAutoVariants {
			break
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("print provider offers no variants for blueprint " + strconv.Itoa(c.blueprintID))
	}
	c.variants = ids
	return ids, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is returned for non-2xx catalog responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if msg := apiErrorMessage(e.Body); msg != "" {
		return msg
	}
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return "rate limited"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "catalog rejected credentials"
	}
	body := e.Body
	if runes := []rune(body); len(runes) > maxErrorBodyRunes {
		body = string(runes[:maxErrorBodyRunes]) + "..."
	}
	if body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, body)
}

// apiErrorMessage extracts the human-readable part of a catalog error body,
// which is either {"error": "..."} or {"message": "..."}.
func apiErrorMessage(body string) string {
	var parsed struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return ""
	}
	if msg, ok := parsed.Error.(string); ok && strings.TrimSpace(msg) != "" {
		return strings.TrimSpace(msg)
	}
	return strings.TrimSpace(parsed.Message)
}
