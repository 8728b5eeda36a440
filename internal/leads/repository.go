package leads

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/lead-qualifier/internal/qualification"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	// FindOpenByPhone returns the open lead created for the sender phone (or,
	// for leads without one, the contact phone), or ErrLeadNotFound.
	FindOpenByPhone(ctx context.Context, phone string) (*Lead, error)
	// Enrich merges req into an existing lead.
	Enrich(ctx context.Context, id string, req *CreateLeadRequest) (*Lead, error)
	AddNote(ctx context.Context, leadID, body string) error
}

// InMemoryRepository is a Repository using in-memory storage
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
	notes map[string][]Note
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
		notes: make(map[string][]Note),
	}
}

// Create creates a new lead in memory. Only one open lead may exist per
// sender phone.
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findOpenLocked(req.DedupePhone()) != nil {
		return nil, ErrDuplicateLead
	}
	lead := req.toLead(uuid.New().String(), time.Now().UTC())
	r.leads[lead.ID] = lead
	return copyLead(lead), nil
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return copyLead(lead), nil
}

func (r *InMemoryRepository) FindOpenByPhone(ctx context.Context, phone string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if lead := r.findOpenLocked(phone); lead != nil {
		return copyLead(lead), nil
	}
	return nil, ErrLeadNotFound
}

func (r *InMemoryRepository) Enrich(ctx context.Context, id string, req *CreateLeadRequest) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	updated := req.enrich(lead)
	updated.UpdatedAt = time.Now().UTC()
	r.leads[id] = updated
	return copyLead(updated), nil
}

func (r *InMemoryRepository) AddNote(ctx context.Context, leadID, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.leads[leadID]; !ok {
		return ErrLeadNotFound
	}
	r.notes[leadID] = append(r.notes[leadID], Note{
		ID:        uuid.New().String(),
		LeadID:    leadID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Notes returns the notes of a lead in insertion order.
func (r *InMemoryRepository) Notes(leadID string) []Note {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Note(nil), r.notes[leadID]...)
}

// List returns all leads, oldest first.
func (r *InMemoryRepository) List() []*Lead {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Lead, 0, len(r.leads))
	for _, l := range r.leads {
		out = append(out, copyLead(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *InMemoryRepository) findOpenLocked(phone string) *Lead {
	digits := qualification.NormalizePhone(phone)
	if digits == "" {
		return nil
	}
	for _, l := range r.leads {
		if l.Status == StatusOpen && qualification.NormalizePhone(l.dedupePhone()) == digits {
			return l
		}
	}
	return nil
}

func copyLead(l *Lead) *Lead {
	c := *l
	return &c
}
