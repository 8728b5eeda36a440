package leads

import (
	"strings"
	"time"
)

// Status values for a lead.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Lead is a qualified sales lead as stored by the CRM.
type Lead struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ContactName     string    `json:"contact_name,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	SenderPhone     string    `json:"sender_phone,omitempty"`
	Email           string    `json:"email,omitempty"`
	City            string    `json:"city,omitempty"`
	ProductInterest string    `json:"product_interest,omitempty"`
	Need            string    `json:"need,omitempty"`
	Budget          string    `json:"budget,omitempty"`
	Urgency         string    `json:"urgency,omitempty"`
	Priority        string    `json:"priority"`
	Source          string    `json:"source"`
	Tier            string    `json:"tier"`
	Score           float64   `json:"score"`
	Forced          bool      `json:"forced,omitempty"`
	Status          string    `json:"status"`
	Description     string    `json:"description,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Note is a timestamped comment attached to a lead.
type Note struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateLeadRequest carries the fields of a new lead. SenderPhone is the
// channel number the conversation came from; Phone is the contact number.
type CreateLeadRequest struct {
	Title           string  `json:"title"`
	ContactName     string  `json:"contact_name"`
	Phone           string  `json:"phone"`
	SenderPhone     string  `json:"sender_phone"`
	Email           string  `json:"email"`
	City            string  `json:"city"`
	ProductInterest string  `json:"product_interest"`
	Need            string  `json:"need"`
	Budget          string  `json:"budget"`
	Urgency         string  `json:"urgency"`
	Priority        string  `json:"priority"`
	Source          string  `json:"source"`
	Tier            string  `json:"tier"`
	Score           float64 `json:"score"`
	Forced          bool    `json:"forced"`
	Description     string  `json:"description"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrInvalidTitle
	}
	if strings.TrimSpace(r.Email) == "" && strings.TrimSpace(r.Phone) == "" {
		return ErrMissingContact
	}
	return nil
}

// DedupePhone is the number open leads are unique on: the sender phone,
// or the contact phone for requests that did not come from a conversation.
func (r *CreateLeadRequest) DedupePhone() string {
	if r.SenderPhone != "" {
		return r.SenderPhone
	}
	return r.Phone
}

func (l *Lead) dedupePhone() string {
	if l.SenderPhone != "" {
		return l.SenderPhone
	}
	return l.Phone
}

func (r *CreateLeadRequest) toLead(id string, now time.Time) *Lead {
	return &Lead{
		ID:              id,
		Title:           r.Title,
		ContactName:     r.ContactName,
		Phone:           r.Phone,
		SenderPhone:     r.SenderPhone,
		Email:           r.Email,
		City:            r.City,
		ProductInterest: r.ProductInterest,
		Need:            r.Need,
		Budget:          r.Budget,
		Urgency:         r.Urgency,
		Priority:        r.Priority,
		Source:          r.Source,
		Tier:            r.Tier,
		Score:           r.Score,
		Forced:          r.Forced,
		Status:          StatusOpen,
		Description:     r.Description,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// enrich copies onto existing the contact details it lacks and any fresher
// qualification from r.
func (r *CreateLeadRequest) enrich(existing *Lead) *Lead {
	out := *existing
	if r.ContactName != "" && out.ContactName == "" {
		out.ContactName = r.ContactName
		out.Title = r.Title
	}
	if r.Email != "" {
		out.Email = r.Email
	}
	if r.City != "" {
		out.City = r.City
	}
	if r.ProductInterest != "" {
		out.ProductInterest = r.ProductInterest
	}
	if r.Budget != "" {
		out.Budget = r.Budget
	}
	if r.Urgency != "" {
		out.Urgency = r.Urgency
		out.Priority = r.Priority
	}
	if r.Score > out.Score {
		out.Score = r.Score
		out.Tier = r.Tier
	}
	return &out
}
