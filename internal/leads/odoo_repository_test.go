package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOdoo struct {
	mu    sync.Mutex
	calls []rpcParams
	// respond returns the result for object calls.
	respond func(model, method string, args []any) any
}

func (f *fakeOdoo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, req.Params)
	f.mu.Unlock()

	var result any
	switch {
	case req.Params.Service == "common" && req.Params.Method == "login":
		if req.Params.Args[2] != "secret" {
			result = false
		} else {
			result = 7
		}
	case req.Params.Service == "object":
		args := req.Params.Args
		model, _ := args[3].(string)
		method, _ := args[4].(string)
		positional, _ := args[5].([]any)
		result = f.respond(model, method, positional)
	}
	json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func (f *fakeOdoo) objectCalls() []rpcParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rpcParams
	for _, c := range f.calls {
		if c.Service == "object" {
			out = append(out, c)
		}
	}
	return out
}

func TestOdooRepository_CreateAndNote(t *testing.T) {
	fake := &fakeOdoo{respond: func(model, method string, args []any) any {
		switch model + "." + method {
		case "crm.lead.create":
			return 42
		case "mail.message.create":
			return 900
		}
		return false
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client := NewOdooClient(OdooConfig{URL: srv.URL + "/", DB: "crm", Username: "bot", Password: "secret"}, srv.Client(), nil)
	repo := NewOdooRepository(client)
	ctx := context.Background()

	lead, err := repo.Create(ctx, &CreateLeadRequest{Title: "Ana - sofás", ContactName: "Ana", Phone: "+34600111222", SenderPhone: "+525511112222", Priority: "2"})
	require.NoError(t, err)
	assert.Equal(t, "42", lead.ID)

	require.NoError(t, repo.AddNote(ctx, lead.ID, "<p>hola</p>"))

	calls := fake.objectCalls()
	require.Len(t, calls, 2)
	vals := calls[0].Args[5].([]any)[0].(map[string]any)
	assert.Equal(t, "Ana - sofás", vals["name"])
	assert.Equal(t, "2", vals["priority"])
	assert.Equal(t, "+34600111222", vals["phone"])
	assert.Equal(t, "+525511112222", vals["mobile"])
	assert.NotContains(t, vals, "x_source")
	assert.Equal(t, "crm", calls[0].Args[0])

	note := calls[1].Args[5].([]any)[0].(map[string]any)
	assert.Equal(t, "crm.lead", note["model"])
	assert.EqualValues(t, 42, note["res_id"])
}

func TestOdooRepository_FindOpenByPhone(t *testing.T) {
	fake := &fakeOdoo{respond: func(model, method string, args []any) any {
		if method != "search_read" {
			return false
		}
		return []map[string]any{{
			"id": 5, "name": "Lead WhatsApp - +52", "contact_name": false, "phone": "+525511112222", "mobile": "+525511112222",
			"email_from": false, "city": "CDMX", "description": "", "priority": "1", "active": true,
			"create_date": "2026-01-05 10:00:00", "write_date": "2026-01-05 10:00:00",
		}}
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	repo := NewOdooRepository(NewOdooClient(OdooConfig{URL: srv.URL, DB: "crm", Username: "bot", Password: "secret"}, srv.Client(), nil))
	lead, err := repo.FindOpenByPhone(context.Background(), "whatsapp:+52 55 1111 2222")
	require.NoError(t, err)
	assert.Equal(t, "5", lead.ID)
	assert.Equal(t, "", lead.ContactName)
	assert.Equal(t, "CDMX", lead.City)
	assert.Equal(t, "+525511112222", lead.SenderPhone)
	assert.Equal(t, 2026, lead.CreatedAt.Year())

	domain := fake.objectCalls()[0].Args[5].([]any)[0].([]any)
	assert.Contains(t, domain, "|")
	assert.Contains(t, domain, []any{"phone", "ilike", "525511112222"})
	assert.Contains(t, domain, []any{"mobile", "ilike", "525511112222"})
}

func TestOdooClient_LoginFailure(t *testing.T) {
	srv := httptest.NewServer(&fakeOdoo{})
	defer srv.Close()

	repo := NewOdooRepository(NewOdooClient(OdooConfig{URL: srv.URL, DB: "crm", Username: "bot", Password: "wrong"}, srv.Client(), nil))
	_, err := repo.Create(context.Background(), &CreateLeadRequest{Title: "x", Phone: "1"})
	assert.ErrorContains(t, err, "authentication failed")
}

func TestOdooClient_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": 200, "message": "Odoo Server Error", "data": map[string]any{"message": "Access Denied"}},
		})
	}))
	defer srv.Close()

	client := NewOdooClient(OdooConfig{URL: srv.URL, DB: "crm"}, srv.Client(), nil)
	err := client.ExecuteKw(context.Background(), "crm.lead", "create", nil, nil, nil)
	assert.ErrorContains(t, err, "Access Denied")
}
