package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wolfman30/lead-qualifier/internal/qualification"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// OdooConfig holds the CRM connection settings.
type OdooConfig struct {
	URL      string
	DB       string
	Username string
	Password string
	// CustomFields enables the x_* lead columns of customized installations.
	CustomFields bool
}

// OdooClient speaks Odoo's JSON-RPC protocol.
type OdooClient struct {
	cfg    OdooConfig
	http   *http.Client
	logger *logging.Logger

	mu  sync.Mutex
	uid int
	seq atomic.Int64
}

// NewOdooClient creates a client; authentication happens on first use.
func NewOdooClient(cfg OdooConfig, httpClient *http.Client, logger *logging.Logger) *OdooClient {
	if strings.TrimSpace(cfg.URL) == "" {
		panic("leads: odoo url required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &OdooClient{cfg: cfg, http: httpClient, logger: logger}
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

func (e *rpcError) Error() string {
	if e.Data.Message != "" {
		return fmt.Sprintf("odoo rpc error %d: %s", e.Code, e.Data.Message)
	}
	return fmt.Sprintf("odoo rpc error %d: %s", e.Code, e.Message)
}

func (c *OdooClient) call(ctx context.Context, service, method string, args []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      c.seq.Add(1),
	})
	if err != nil {
		return fmt.Errorf("leads: encode odoo request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/jsonrpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("leads: build odoo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("leads: odoo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("leads: odoo returned status %d", resp.StatusCode)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return fmt.Errorf("leads: decode odoo response: %w", err)
	}
	if rpc.Error != nil {
		return fmt.Errorf("leads: %s.%s: %w", service, method, rpc.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpc.Result, out); err != nil {
		return fmt.Errorf("leads: decode odoo result: %w", err)
	}
	return nil
}

func (c *OdooClient) login(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 {
		return c.uid, nil
	}
	var raw json.RawMessage
	if err := c.call(ctx, "common", "login", []any{c.cfg.DB, c.cfg.Username, c.cfg.Password}, &raw); err != nil {
		return 0, err
	}
	var uid int
	if err := json.Unmarshal(raw, &uid); err != nil || uid == 0 {
		return 0, errors.New("leads: odoo authentication failed")
	}
	c.uid = uid
	c.logger.Info("odoo session established", "db", c.cfg.DB, "uid", uid)
	return uid, nil
}

// ExecuteKw invokes model.method with positional args and keyword args.
func (c *OdooClient) ExecuteKw(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	uid, err := c.login(ctx)
	if err != nil {
		return err
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return c.call(ctx, "object", "execute_kw",
		[]any{c.cfg.DB, uid, c.cfg.Password, model, method, args, kwargs}, out)
}

// OdooRepository stores leads as crm.lead records.
type OdooRepository struct {
	client       *OdooClient
	customFields bool
}

var _ Repository = (*OdooRepository)(nil)

func NewOdooRepository(client *OdooClient) *OdooRepository {
	if client == nil {
		panic("leads: odoo client required")
	}
	return &OdooRepository{client: client, customFields: client.cfg.CustomFields}
}

var odooLeadFields = []string{"name", "contact_name", "phone", "mobile", "email_from", "city", "description", "priority", "active", "create_date", "write_date"}

func (r *OdooRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	vals := map[string]any{
		"name":        req.Title,
		"phone":       req.Phone,
		"description": req.Description,
		"priority":    req.Priority,
	}
	setIf(vals, "mobile", req.SenderPhone)
	setIf(vals, "contact_name", req.ContactName)
	setIf(vals, "email_from", req.Email)
	setIf(vals, "city", req.City)
	if r.customFields {
		vals["x_source"] = req.Source
		vals["x_whatsapp_phone"] = req.DedupePhone()
		vals["x_ai_confidence"] = req.Score
		vals["x_quality_score"] = req.Tier
		setIf(vals, "x_product_interest", req.ProductInterest)
		setIf(vals, "x_budget_range", req.Budget)
	}

	var id int
	if err := r.client.ExecuteKw(ctx, "crm.lead", "create", []any{vals}, nil, &id); err != nil {
		return nil, err
	}
	return req.toLead(strconv.Itoa(id), time.Now().UTC()), nil
}

func (r *OdooRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil, ErrLeadNotFound
	}
	var rows []map[string]any
	if err := r.client.ExecuteKw(ctx, "crm.lead", "search_read",
		[]any{[]any{[]any{"id", "=", n}}},
		map[string]any{"fields": odooLeadFields, "limit": 1}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrLeadNotFound
	}
	return leadFromOdoo(rows[0]), nil
}

// FindOpenByPhone matches the mobile column, where the sender phone is
// stored, or the phone column for leads entered by hand.
func (r *OdooRepository) FindOpenByPhone(ctx context.Context, phone string) (*Lead, error) {
	digits := qualification.NormalizePhone(phone)
	if digits == "" {
		return nil, ErrLeadNotFound
	}
	domain := []any{
		[]any{"active", "=", true},
		"|",
		[]any{"phone", "ilike", digits},
		[]any{"mobile", "ilike", digits},
	}
	var rows []map[string]any
	if err := r.client.ExecuteKw(ctx, "crm.lead", "search_read", []any{domain},
		map[string]any{"fields": odooLeadFields, "limit": 1, "order": "create_date desc"}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrLeadNotFound
	}
	return leadFromOdoo(rows[0]), nil
}

func (r *OdooRepository) Enrich(ctx context.Context, id string, req *CreateLeadRequest) (*Lead, error) {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := req.enrich(existing)
	n, _ := strconv.Atoi(id)

	vals := map[string]any{"priority": updated.Priority}
	setIf(vals, "name", updated.Title)
	setIf(vals, "contact_name", updated.ContactName)
	setIf(vals, "email_from", updated.Email)
	setIf(vals, "city", updated.City)
	if err := r.client.ExecuteKw(ctx, "crm.lead", "write", []any{[]any{n}, vals}, nil, nil); err != nil {
		return nil, err
	}
	updated.UpdatedAt = time.Now().UTC()
	return updated, nil
}

// AddNote posts an internal note in the lead's chatter.
func (r *OdooRepository) AddNote(ctx context.Context, leadID, body string) error {
	n, err := strconv.Atoi(leadID)
	if err != nil {
		return ErrLeadNotFound
	}
	vals := map[string]any{
		"model":         "crm.lead",
		"res_id":        n,
		"message_type":  "comment",
		"body":          body,
		"subtype_xmlid": "mail.mt_note",
	}
	return r.client.ExecuteKw(ctx, "mail.message", "create", []any{vals}, nil, nil)
}

func leadFromOdoo(row map[string]any) *Lead {
	lead := &Lead{
		ID:          strconv.Itoa(odooInt(row["id"])),
		Title:       odooString(row["name"]),
		ContactName: odooString(row["contact_name"]),
		Phone:       odooString(row["phone"]),
		SenderPhone: odooString(row["mobile"]),
		Email:       odooString(row["email_from"]),
		City:        odooString(row["city"]),
		Description: odooString(row["description"]),
		Priority:    odooString(row["priority"]),
		Source:      SourceWhatsApp,
		Status:      StatusOpen,
	}
	if active, ok := row["active"].(bool); ok && !active {
		lead.Status = StatusClosed
	}
	lead.CreatedAt = odooTime(row["create_date"])
	lead.UpdatedAt = odooTime(row["write_date"])
	return lead
}

// odooString maps Odoo's false-for-empty convention onto "".
func odooString(v any) string {
	s, _ := v.(string)
	return s
}

func odooInt(v any) int {
	f, _ := v.(float64)
	return int(f)
}

func odooTime(v any) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", odooString(v))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func setIf(vals map[string]any, key, value string) {
	if strings.TrimSpace(value) != "" {
		vals[key] = value
	}
}
