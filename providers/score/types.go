package score

// Contact mirrors the CRM contacts table.
type Contact struct {
	ID           string `json:"id,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	MiddleName   string `json:"middle_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	FullName     string `json:"full_name,omitempty"`
	NameSuffix   string `json:"name_suffix,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	AddressLine1 string `json:"address_line_1,omitempty"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Zip          string `json:"zip,omitempty"`
	Birthdate    string `json:"birthdate,omitempty"`
	AgentUserID  string `json:"agent_user_id,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// Opportunity mirrors the CRM opportunities table.
type Opportunity struct {
	ID           string `json:"id,omitempty"`
	ContactID    string `json:"contact_id,omitempty"`
	AgentUserID  string `json:"agent_user_id,omitempty"`
	LeadSourceID string `json:"lead_source_id,omitempty"`
	Status       string `json:"status,omitempty"`
	Type         string `json:"type,omitempty"`
	Notes        string `json:"notes,omitempty"`
	FollowUpDate string `json:"follow_up_date,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// Policy mirrors the CRM policies table.
type Policy struct {
	ID            string  `json:"id,omitempty"`
	OpportunityID string  `json:"opportunity_id,omitempty"`
	CarrierID     string  `json:"carrier_id,omitempty"`
	PolicyNumber  string  `json:"policy_number,omitempty"`
	PolicyStatus  string  `json:"policy_status,omitempty"`
	FaceAmount    float64 `json:"face_amount,omitempty"`
	AnnualPremium float64 `json:"annual_premium,omitempty"`
	ProductType   string  `json:"product_type,omitempty"`
	ProductName   string  `json:"product_name,omitempty"`
	SubmittedDate string  `json:"submitted_date,omitempty"`
	EffectiveDate string  `json:"effective_date,omitempty"`
	IsSplit       bool    `json:"is_split,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

// Opportunity pipeline statuses as stored by the CRM.
const (
	OpportunityStatusNewLead           = "NEW_LEAD"
	OpportunityStatusContactAttempted  = "CONTACT_ATTEMPTED"
	OpportunityStatusInContact         = "IN_CONTACT"
	OpportunityStatusAppointmentBooked = "APPOINTMENT_BOOKED"
	OpportunityStatusFollowUp          = "FOLLOW_UP"
	OpportunityStatusProposalSent      = "PROPOSAL_SENT"
	OpportunityStatusClosedWon         = "CLOSED_WON"
	OpportunityStatusClosedLost        = "CLOSED_LOST"
)

// Insurance product lines an opportunity can carry.
const (
	OpportunityTypeLife    = "LIFE"
	OpportunityTypeHealth  = "HEALTH"
	OpportunityTypeAnnuity = "ANNUITY"
)
