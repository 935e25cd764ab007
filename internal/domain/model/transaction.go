package model

import "time"

type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "PENDING"    // created; awaiting gateway handoff or payment
	TransactionStatusProcessing TransactionStatus = "PROCESSING" // gateway reported an in-progress authorization
	TransactionStatusPaid       TransactionStatus = "PAID"       // captured/settled at the gateway
	TransactionStatusFailed     TransactionStatus = "FAILED"     // denied by the gateway
	TransactionStatusCancelled  TransactionStatus = "CANCELLED"  // cancelled by user/admin or gateway
	TransactionStatusExpired    TransactionStatus = "EXPIRED"    // deadline passed without payment
	TransactionStatusRefunded   TransactionStatus = "REFUNDED"   // refunded after payment; terminal
)

// legalTransitions is the single authority for the transaction state machine.
// Terminal states have no outgoing edges except PAID -> REFUNDED.
var legalTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending: {
		TransactionStatusProcessing,
		TransactionStatusPaid,
		TransactionStatusFailed,
		TransactionStatusCancelled,
		TransactionStatusExpired,
	},
	TransactionStatusProcessing: {
		TransactionStatusPaid,
		TransactionStatusFailed,
		TransactionStatusCancelled,
		TransactionStatusExpired,
	},
	TransactionStatusPaid: {
		TransactionStatusRefunded,
	},
}

// CanTransition reports whether moving from one status to another is legal.
// Re-applying the current status is allowed so that webhook replays stay
// idempotent at the caller.
func CanTransition(from, to TransactionStatus) bool {
	if from == to {
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing edges other than the
// refund path.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusPaid, TransactionStatusFailed, TransactionStatusCancelled,
		TransactionStatusExpired, TransactionStatusRefunded:
		return true
	}
	return false
}

// GatewayMeta holds the gateway-owned slice of transaction metadata.
type GatewayMeta struct {
	Token          string     `json:"token,omitempty"`
	RedirectURL    string     `json:"redirect_url,omitempty"`
	RawStatus      string     `json:"raw_status,omitempty"`
	PaymentType    string     `json:"payment_type,omitempty"`
	FraudStatus    string     `json:"fraud_status,omitempty"`
	SettlementTime *time.Time `json:"settlement_time,omitempty"`
}

// CourseSnapshot freezes the purchased course at creation time so later price
// edits do not rewrite history.
type CourseSnapshot struct {
	Title         string `json:"title"`
	Price         int64  `json:"price"`
	DiscountPrice *int64 `json:"discount_price,omitempty"`
}

// RefundMeta is the refund audit trail.
type RefundMeta struct {
	Reason     string    `json:"reason"`
	AdminID    string    `json:"admin_id,omitempty"`
	RefundedAt time.Time `json:"refunded_at"`
}

// TransactionMeta replaces the free-form JSON bag with typed, per-concern
// sections. Merge updates one section at a time; writers never clobber a
// section they do not own.
type TransactionMeta struct {
	Gateway *GatewayMeta    `json:"gateway,omitempty"`
	Course  *CourseSnapshot `json:"course,omitempty"`
	Refund  *RefundMeta     `json:"refund,omitempty"`
}

// Merge applies the non-nil sections of other onto m.
func (m *TransactionMeta) Merge(other TransactionMeta) {
	if other.Gateway != nil {
		m.Gateway = other.Gateway
	}
	if other.Course != nil {
		m.Course = other.Course
	}
	if other.Refund != nil {
		m.Refund = other.Refund
	}
}

// Transaction records one purchase attempt for one (user, course) pair.
type Transaction struct {
	ID            string // UUID
	OrderID       string // ULID, external-facing, globally unique
	UserID        string
	CourseID      string
	Amount        int64 // amount charged; equals discounted price when one exists
	Discount      int64 // list price minus discounted price, 0 without discount
	TotalAmount   int64 // equals Amount at creation
	PaymentMethod string
	Status        TransactionStatus
	PaymentURL    string // empty until the gateway answers
	Meta          TransactionMeta
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PaidAt        *time.Time
	ExpiresAt     time.Time // creation + 24h payment deadline
	RefundedAt    *time.Time
}
