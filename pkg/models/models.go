package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleLawyer Role = "lawyer"
	RoleClient Role = "client"
)

// ApprovalStatus is the admin-controlled gate on lawyer accounts.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ConsultationStatus defines lifecycle states for a consultation.
type ConsultationStatus string

const (
	ConsultationActive     ConsultationStatus = "active"
	ConsultationInProgress ConsultationStatus = "in_progress"
	ConsultationCompleted  ConsultationStatus = "completed"
	ConsultationCancelled  ConsultationStatus = "cancelled"
)

// ProposalStatus defines lifecycle states for a proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

// PaymentStatus mirrors the subset of gateway order states we track locally.
type PaymentStatus string

const (
	PaymentInitiated  PaymentStatus = "initiated"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCanceled   PaymentStatus = "canceled"
	PaymentDeclined   PaymentStatus = "declined"
)

// NotificationType tags entries in the per-user notification log.
type NotificationType string

const (
	NotifLawyerApproved   NotificationType = "lawyer_approved"
	NotifLawyerRejected   NotificationType = "lawyer_rejected"
	NotifNewProposal      NotificationType = "new_proposal"
	NotifProposalAccepted NotificationType = "proposal_accepted"
	NotifPaymentStatus    NotificationType = "payment_status"
	NotifNewMessage       NotificationType = "new_message"
	NotifWelcome          NotificationType = "welcome"
)

/* =============================== Entities =============================== */

// User is the shared identity record for admins, lawyers and clients.
// Users are never hard-deleted; Lawyer/Client carry soft-delete flags.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(20);not null" json:"role"`
	Name         string    `json:"name"`
	GoogleID     *string   `gorm:"uniqueIndex" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Lawyer is the 1:1 professional profile of a user with role=lawyer.
// Rating is the mean of all non-deleted review ratings rounded to 2
// decimals; TotalReviews counts the same rows.
type Lawyer struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	BarNumber      string         `json:"bar_number"`
	Jurisdiction   string         `json:"jurisdiction"`
	Bio            string         `json:"bio"`
	ApprovalStatus ApprovalStatus `gorm:"type:varchar(20);default:'pending'" json:"approval_status"`
	Rating         float64        `gorm:"default:0" json:"rating"`
	TotalReviews   int            `gorm:"default:0" json:"total_reviews"`
	IsDeleted      bool           `gorm:"default:false" json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	User User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
}

func (l *Lawyer) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Client is the 1:1 profile of a user with role=client.
type Client struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	IsDeleted bool      `gorm:"default:false" json:"-"`
	CreatedAt time.Time `json:"created_at"`

	User User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
}

func (c *Client) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Category groups consultations for browsing and filtering.
type Category struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Consultation is a client's request for legal help. It starts Active,
// flips to InProgress when a payment order is authorized, and reverts to
// Active when the order is canceled or declined.
type Consultation struct {
	ID           uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID     uuid.UUID          `gorm:"type:uuid;not null;index" json:"client_id"`
	CategoryID   uuid.UUID          `gorm:"type:uuid;not null;index" json:"category_id"`
	LawyerID     *uuid.UUID         `gorm:"type:uuid;index" json:"lawyer_id,omitempty"`
	Title        string             `gorm:"not null" json:"title"`
	Description  string             `json:"description"`
	BudgetCents  int                `gorm:"not null" json:"budget_cents"`
	DurationDays int                `gorm:"not null" json:"duration_days"`
	Status       ConsultationStatus `gorm:"type:varchar(20);default:'active'" json:"status"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`

	Files     []ConsultationFile `json:"files,omitempty"`
	Proposals []Proposal         `json:"proposals,omitempty"`
}

func (c *Consultation) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ConsultationFile is a document uploaded to a consultation.
type ConsultationFile struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConsultationID uuid.UUID `gorm:"type:uuid;not null;index" json:"consultation_id"`
	Key            string    `gorm:"not null" json:"key"`
	Mime           string    `gorm:"not null" json:"mime"`
	Size           int       `gorm:"not null" json:"size"`
	OriginalName   string    `json:"original_name"`
	CreatedAt      time.Time `json:"created_at"`

	Consultation Consultation `gorm:"foreignKey:ConsultationID;references:ID" json:"-"`
}

func (f *ConsultationFile) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// Proposal is a lawyer's bid against a consultation. One proposal per
// (consultation, lawyer); at most one Accepted proposal per consultation,
// enforced by the acceptance transaction.
type Proposal struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConsultationID uuid.UUID      `gorm:"type:uuid;not null;index:idx_consultation_lawyer,unique" json:"consultation_id"`
	LawyerID       uuid.UUID      `gorm:"type:uuid;not null;index:idx_consultation_lawyer,unique" json:"lawyer_id"`
	AmountCents    int            `gorm:"not null" json:"amount_cents"`
	Days           int            `gorm:"not null" json:"days"`
	Description    string         `json:"description"`
	Status         ProposalStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (p *Proposal) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Review is a client's rating of a lawyer. Soft-deleted rows stay in the
// table but are excluded from the lawyer's aggregates.
type Review struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	LawyerID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"lawyer_id"`
	Rating    int        `gorm:"not null" json:"rating"`
	Comment   string     `json:"comment"`
	IsDeleted bool       `gorm:"default:false" json:"-"`
	DeletedAt *time.Time `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (r *Review) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Report is an immutable complaint filed by a participant of a
// consultation against its lawyer.
type Report struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ConsultationID   uuid.UUID `gorm:"type:uuid;not null;index" json:"consultation_id"`
	ReporterUserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"reporter_user_id"`
	ReportedLawyerID uuid.UUID `gorm:"type:uuid;not null;index" json:"reported_lawyer_id"`
	Reason           string    `gorm:"not null" json:"reason"`
	Details          string    `json:"details"`
	CreatedAt        time.Time `json:"created_at"`
}

func (r *Report) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Chat groups messages between two users for one consultation.
type Chat struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ConsultationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_chat_participants,unique" json:"consultation_id"`
	ClientUserID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_chat_participants,unique" json:"client_user_id"`
	LawyerUserID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_chat_participants,unique" json:"lawyer_user_id"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (c *Chat) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ChatMessage is an append-only message inside a chat.
type ChatMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID    uuid.UUID `gorm:"type:uuid;not null;index" json:"chat_id"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	Content   string    `gorm:"not null" json:"content"`
	IsRead    bool      `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *ChatMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ProfileImage stores the CDN location of a user's avatar.
type ProfileImage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Key       string    `gorm:"not null" json:"-"`
	URL       string    `gorm:"not null" json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *ProfileImage) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Notification is one entry in the append-only per-user message log.
// Data carries an optional JSON payload for the frontend.
type Notification struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	Type      NotificationType `gorm:"type:varchar(40);not null" json:"type"`
	Title     string           `gorm:"not null" json:"title"`
	Body      string           `json:"body"`
	Data      string           `json:"data,omitempty"`
	IsRead    bool             `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// RefreshToken stores a SHA-256 hash of an opaque refresh token. A user's
// whole set is revoked on logout, password change and token reuse.
type RefreshToken struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	TokenHash    string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt    time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt    *time.Time `json:"-"`
	ReplacedByID *uuid.UUID `gorm:"type:uuid" json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (t *RefreshToken) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Payment is a local record of a gateway checkout/order for a
// consultation. Status mutates only after the gateway confirms.
type Payment struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ConsultationID uuid.UUID     `gorm:"type:uuid;not null;index" json:"consultation_id"`
	ProposalID     uuid.UUID     `gorm:"type:uuid;not null" json:"proposal_id"`
	ClientID       uuid.UUID     `gorm:"type:uuid;not null" json:"client_id"`
	OrderID        *string       `gorm:"uniqueIndex" json:"order_id,omitempty"`
	CheckoutID     *string       `json:"checkout_id,omitempty"`
	AmountCents    int           `gorm:"not null" json:"amount_cents"`
	Status         PaymentStatus `gorm:"type:varchar(20);default:'initiated'" json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ConsultationHistory is an audit log entry for important consultation
// changes.
type ConsultationHistory struct {
	ID             uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	ConsultationID uuid.UUID          `gorm:"type:uuid;not null;index" json:"consultation_id"`
	ActorID        uuid.UUID          `gorm:"type:uuid;not null;index" json:"actor_id"`
	Action         string             `gorm:"type:varchar(50);not null" json:"action"`
	OldStatus      ConsultationStatus `gorm:"type:varchar(20)" json:"old_status"`
	NewStatus      ConsultationStatus `gorm:"type:varchar(20)" json:"new_status"`
	Reason         string             `gorm:"type:text" json:"reason"`
	CreatedAt      time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

func (h *ConsultationHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// All lists every model in migration order.
func All() []any {
	return []any{
		&User{}, &Lawyer{}, &Client{}, &Category{},
		&Consultation{}, &ConsultationFile{}, &Proposal{},
		&Review{}, &Report{}, &Chat{}, &ChatMessage{},
		&ProfileImage{}, &Notification{}, &RefreshToken{},
		&Payment{}, &ConsultationHistory{},
	}
}
