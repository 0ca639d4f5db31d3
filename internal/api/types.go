package api

import "time"

// Page is the backend's paginated list envelope.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// TokenResponse is returned by the login and refresh endpoints.
type TokenResponse struct {
	Access                 string `json:"access"`
	Refresh                string `json:"refresh,omitempty"`
	RequiresPasswordChange bool   `json:"requires_password_change,omitempty"`
}

// Profile is the server-reported identity of the signed-in user.
type Profile struct {
	FirstName              string   `json:"first_name"`
	LastName               string   `json:"last_name"`
	CompanyID              int64    `json:"company_id"`
	Company                string   `json:"company"`
	CompanyRole            string   `json:"company_role,omitempty"`
	IsAdmin                bool     `json:"is_admin,omitempty"`
	IsEmployee             bool     `json:"is_employee,omitempty"`
	CanWrite               bool     `json:"can_write,omitempty"`
	Role                   string   `json:"role,omitempty"`
	Permissions            []string `json:"permissions,omitempty"`
	RequiresPasswordChange bool     `json:"requires_password_change,omitempty"`
}

// FullName joins first and last name.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CNPJ      string    `json:"cnpj,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MicroCompany is a business unit of a company; the UI calls these "companies".
type MicroCompany struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Logo        string    `json:"logo,omitempty"`
	Description string    `json:"description,omitempty"`
	Company     int64     `json:"company"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Document statuses reported by the processing pipeline.
const (
	DocumentPending    = "PENDING"
	DocumentProcessing = "PROCESSING"
	DocumentCompleted  = "COMPLETED"
	DocumentFailed     = "FAILED"
)

type Document struct {
	ID         int64     `json:"id"`
	File       string    `json:"file"`
	FileName   string    `json:"file_name"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	Status     string    `json:"status"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Scope struct {
	ID          int64  `json:"id"`
	Category    int64  `json:"category"`
	Name        string `json:"name"`
	NumberScope int    `json:"number_scope"`
}

type Emission struct {
	ID             int64     `json:"id"`
	Scope          Scope     `json:"scope"`
	Type           string    `json:"type"`
	Quantity       string    `json:"quantity"`
	EmissionFactor string    `json:"emission_factor"`
	Year           int       `json:"year"`
	CreatedAt      time.Time `json:"created_at"`
}

type CompanyEmission struct {
	MicroCompany     int64   `json:"micro_company"`
	MicroCompanyName string  `json:"micro_company_name"`
	Emission         float64 `json:"emission"`
	EmissionType     string  `json:"emission_type"`
}

type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// CompanyRoleAssignment links a user to a company with a company_role.
type CompanyRoleAssignment struct {
	CompanyID int64  `json:"company_id"`
	Role      string `json:"role"`
}

type User struct {
	ID           int64                   `json:"id"`
	Username     string                  `json:"username"`
	Email        string                  `json:"email"`
	FirstName    string                  `json:"first_name"`
	LastName     string                  `json:"last_name"`
	CPF          string                  `json:"cpf,omitempty"`
	IsActive     bool                    `json:"is_active"`
	CompanyRoles []CompanyRoleAssignment `json:"company_roles,omitempty"`
}

// UserInput is the body of user create/update calls.
type UserInput struct {
	Username        string `json:"username,omitempty"`
	Email           string `json:"email,omitempty"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	CPF             string `json:"cpf,omitempty"`
	Password        string `json:"password,omitempty"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
	CompanyRole     string `json:"company_role,omitempty"`
	CompanyID       int64  `json:"company_id,omitempty"`
	IsActive        *bool  `json:"is_active,omitempty"`
}
