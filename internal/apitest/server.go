// Package apitest runs an in-process fake of the IaEco backend for tests.
package apitest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"iaeco.app/internal/api"
)

// BasePath is where the fake mounts the API, mirroring the real deployment.
const BasePath = "/api/v1"

// Account is a user known to the fake backend.
type Account struct {
	ID                     int64
	Username               string
	Password               string
	Email                  string
	Active                 bool
	Profile                api.Profile
	RequiresPasswordChange bool
}

// Upload records what the fake received on POST /documents/.
type Upload struct {
	ContentType    string
	FileName       string
	Content        []byte
	Company        string
	IdempotencyKey string
}

// Server is the fake backend. All exported methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	secret    []byte
	accessTTL time.Duration
	accounts  map[string]*Account
	access    map[string]string
	refresh   map[string]string
	calls     map[string]int
	fail      map[string]int
	delays    map[string]time.Duration
	nextID    int64

	micro         []api.MicroCompany
	documents     []api.Document
	links         map[int64]int64
	notifications []api.Notification
	uploads       []Upload
	resetRequests []string
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		secret:    []byte("apitest-secret"),
		accessTTL: 5 * time.Minute,
		accounts:  make(map[string]*Account),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
		calls:     make(map[string]int),
		fail:      make(map[string]int),
		delays:    make(map[string]time.Duration),
		links:     make(map[int64]int64),
		nextID:    100,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the value to hand to api.New.
func (s *Server) BaseURL() string { return s.URL + BasePath }

// AddAccount registers a user and returns it with an assigned ID.
func (s *Server) AddAccount(a Account) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if a.ID == 0 {
		a.ID = s.nextID
	}
	a.Active = true
	s.accounts[a.Username] = &a
	return a
}

// SetProfile replaces the profile served for username.
func (s *Server) SetProfile(username string, p api.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[username]; ok {
		a.Profile = p
	}
}

// AddMicroCompany seeds a micro company.
func (s *Server) AddMicroCompany(m api.MicroCompany) api.MicroCompany {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if m.ID == 0 {
		m.ID = s.nextID
	}
	s.micro = append(s.micro, m)
	return m
}

// AddNotification seeds a notification.
func (s *Server) AddNotification(n api.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
}

// SetAccessTTL changes the lifetime of access tokens issued from now on.
func (s *Server) SetAccessTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = d
}

// InvalidateAccess revokes every issued access token.
func (s *Server) InvalidateAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]string)
}

// InvalidateRefresh revokes every issued refresh token.
func (s *Server) InvalidateRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
}

// Fail makes the next request to "METHOD /path/" answer with status.
func (s *Server) Fail(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method+" "+path] = status
}

// Delay makes every request to "METHOD /path/" sleep before answering.
func (s *Server) Delay(method, path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[method+" "+path] = d
}

// Calls returns how many times "METHOD /path/" was hit.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// Uploads returns the recorded document uploads.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Links returns document id -> micro company id links.
func (s *Server) Links() map[int64]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]int64, len(s.links))
	for k, v := range s.links {
		out[k] = v
	}
	return out
}

// ResetRequests returns the emails password resets were requested for.
func (s *Server) ResetRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.resetRequests...)
}

// MicroCompanies returns the server-side list.
func (s *Server) MicroCompanies() []api.MicroCompany {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.MicroCompany(nil), s.micro...)
}

// Account returns the stored account.
func (s *Server) Account(username string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return Account{}, false
	}
	return *a, true
}

// IssueTokens mints a token pair for username without going through /token/.
func (s *Server) IssueTokens(username string) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueAccessLocked(username), s.issueRefreshLocked(username)
}

func (s *Server) issueAccessLocked(username string) string {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("apitest: sign token: %v", err))
	}
	s.access[signed] = username
	return signed
}

func (s *Server) issueRefreshLocked(username string) string {
	tok := "rt_" + uuid.NewString()
	s.refresh[tok] = username
	return tok
}

// accessValidLocked checks both revocation and the JWT exp claim.
func (s *Server) accessValidLocked(token string) (string, bool) {
	username, ok := s.access[token]
	if !ok {
		return "", false
	}
	_, err := jwt.Parse(token, func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", false
	}
	return username, true
}

// ExpiredAccessToken returns a registered access token whose exp already passed.
func (s *Server) ExpiredAccessToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	past := time.Now().Add(-time.Hour)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(past.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(past),
	}
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	s.access[signed] = username
	return signed
}

type ctxUser struct{}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Route(BasePath, func(r chi.Router) {
		r.Post("/token/", s.handleLogin)
		r.Post("/token/refresh/", s.handleRefresh)
		r.Post("/token/verify/", s.handleVerify)
		r.Post("/password-reset/", s.handlePasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(s.requireBearer)
			r.Get("/users/me/", s.handleMe)
			r.Post("/users/change_password/", s.handleChangePassword)

			r.Get("/companies/", s.handleCompanies)
			r.Get("/companies/by_user/", s.handleCompanies)
			r.Get("/scopes/", s.handleScopes)

			r.Get("/micro/", s.handleListMicro)
			r.Post("/micro/", s.handleCreateMicro)
			r.Put("/micro/{id}/", s.handleUpdateMicro)
			r.Delete("/micro/{id}/", s.handleDeleteMicro)

			r.Post("/documents/", s.handleUpload)
			r.Get("/documents/", s.handleListDocuments)
			r.Get("/documents/{id}/status/", s.handleDocumentStatus)
			r.Post("/documents/{id}/link_micro_company/", s.handleLink)

			r.Get("/notifications/", s.handleNotifications)
			r.Get("/dashboard/", s.handleDashboard)
			r.Get("/emissions/", s.handleEmissions)
			r.Get("/company-emissions/", s.handleCompanyEmissions)

			r.Get("/users/by_company/", s.handleUsersByCompany)
			r.Post("/users/", s.handleCreateUser)
			r.Put("/users/{id}/", s.handleUpdateUser)
			r.Patch("/users/{id}/", s.handleUpdateUser)
			r.Delete("/users/{id}/", s.handleDeleteUser)
			r.Post("/users/{id}/reset_password/", s.handleResetUserPassword)
			r.Post("/users/{id}/toggle_active/", s.handleToggleActive)
		})
	})
	return r
}

// record counts the call and applies configured delays and one-shot failures.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, BasePath)
		s.mu.Lock()
		s.calls[key]++
		status, failing := s.fail[key]
		if failing {
			delete(s.fail, key)
		}
		delay := s.delays[key]
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			writeDetail(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		s.mu.Lock()
		username, ok := s.accessValidLocked(token)
		s.mu.Unlock()
		if header == "" || !ok {
			writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r, username)))
	})
}

func (s *Server) currentAccount(r *http.Request) *Account {
	username, _ := r.Context().Value(ctxUser{}).(string)
	return s.accounts[username]
}

func isCompanyAdmin(a *Account) bool {
	return a != nil && (a.Profile.CompanyRole == "company_admin" || a.Profile.IsAdmin)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[body.Username]
	if !ok || a.Password != body.Password || !a.Active {
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}
	writeJSON(w, http.StatusOK, api.TokenResponse{
		Access:                 s.issueAccessLocked(a.Username),
		Refresh:                s.issueRefreshLocked(a.Username),
		RequiresPasswordChange: a.RequiresPasswordChange,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Refresh string `json:"refresh"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.refresh[body.Refresh]
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}
	writeJSON(w, http.StatusOK, api.TokenResponse{Access: s.issueAccessLocked(username)})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	_, ok := s.accessValidLocked(body.Token)
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Token is invalid or expired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	s.resetRequests = append(s.resetRequests, body.Email)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"detail": "sent"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a := s.currentAccount(r)
	var p api.Profile
	if a != nil {
		p = a.Profile
	}
	s.mu.Unlock()
	if a == nil {
		writeDetail(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Old string `json:"old_password"`
		New string `json:"new_password"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.currentAccount(r)
	if a == nil || a.Password != body.Old {
		writeDetail(w, http.StatusBadRequest, "Senha atual incorreta")
		return
	}
	if len(body.New) < 8 {
		writeDetail(w, http.StatusBadRequest, "Senha muito curta")
		return
	}
	a.Password = body.New
	a.RequiresPasswordChange = false
	a.Profile.RequiresPasswordChange = false
	writeJSON(w, http.StatusOK, map[string]string{"detail": "ok"})
}

func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a := s.currentAccount(r)
	var out []api.Company
	if a != nil && a.Profile.CompanyID != 0 {
		out = append(out, api.Company{ID: a.Profile.CompanyID, Name: a.Profile.Company})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, page(out))
}

func (s *Server) handleScopes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, page([]api.Scope{
		{ID: 1, Name: "Escopo 1", NumberScope: 1},
		{ID: 2, Name: "Escopo 2", NumberScope: 2},
		{ID: 3, Name: "Escopo 3", NumberScope: 3},
	}))
}

func (s *Server) handleListMicro(w http.ResponseWriter, r *http.Request) {
	companyFilter := r.URL.Query().Get("company")
	s.mu.Lock()
	var out []api.MicroCompany
	for _, m := range s.micro {
		if companyFilter != "" && strconv.FormatInt(m.Company, 10) != companyFilter {
			continue
		}
		out = append(out, m)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, page(out))
}

func (s *Server) handleCreateMicro(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "multipart form required")
		return
	}
	name := r.FormValue("name")
	if name == "" {
		writeDetail(w, http.StatusBadRequest, "name is required")
		return
	}
	company, _ := strconv.ParseInt(r.FormValue("company"), 10, 64)
	s.mu.Lock()
	s.nextID++
	m := api.MicroCompany{
		ID:          s.nextID,
		Name:        name,
		Description: r.FormValue("description"),
		Company:     company,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	s.micro = append(s.micro, m)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUpdateMicro(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "multipart form required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.micro {
		if m.ID != id {
			continue
		}
		if name := r.FormValue("name"); name != "" {
			m.Name = name
		}
		m.Description = r.FormValue("description")
		m.UpdatedAt = time.Now().UTC()
		s.micro[i] = m
		writeJSON(w, http.StatusOK, m)
		return
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

func (s *Server) handleDeleteMicro(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.micro {
		if m.ID == id {
			s.micro = append(s.micro[:i:i], s.micro[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		writeDetail(w, http.StatusUnsupportedMediaType, "multipart form required")
		return
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()
	content, _ := io.ReadAll(f)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		for i, u := range s.uploads {
			if u.IdempotencyKey == key {
				writeJSON(w, http.StatusCreated, s.documents[i])
				return
			}
		}
	}
	s.nextID++
	doc := api.Document{
		ID:        s.nextID,
		FileName:  hdr.Filename,
		FileType:  fileType(hdr.Filename),
		FileSize:  int64(len(content)),
		Status:    api.DocumentPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if a := s.currentAccount(r); a != nil {
		doc.UploadedBy = a.Username
	}
	s.documents = append(s.documents, doc)
	s.uploads = append(s.uploads, Upload{
		ContentType:    ct,
		FileName:       hdr.Filename,
		Content:        content,
		Company:        r.FormValue("company"),
		IdempotencyKey: key,
	})
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]api.Document(nil), s.documents...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, page(out))
}

func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.documents {
		if d.ID == id {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Not found.")
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		MicroCompany int64 `json:"micro_company"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	s.links[id] = body.MicroCompany
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"document": id, "micro_company": body.MicroCompany})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]api.Notification(nil), s.notifications...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, page(out))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	docs := len(s.documents)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total_emissions": 12.5})
}

func (s *Server) handleEmissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, page([]api.Emission{{
		ID:             1,
		Scope:          api.Scope{ID: 1, Name: "Escopo 1", NumberScope: 1},
		Type:           "diesel",
		Quantity:       "100",
		EmissionFactor: "2.68",
		Year:           2024,
	}}))
}

func (s *Server) handleCompanyEmissions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var out []api.CompanyEmission
	for _, m := range s.micro {
		out = append(out, api.CompanyEmission{MicroCompany: m.ID, MicroCompanyName: m.Name, Emission: 1.5, EmissionType: "scope1"})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, page(out))
}

func (s *Server) handleUsersByCompany(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	me := s.currentAccount(r)
	if !isCompanyAdmin(me) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	var out []api.User
	for _, a := range s.accounts {
		if a.Profile.CompanyID == me.Profile.CompanyID {
			out = append(out, userOf(a))
		}
	}
	writeJSON(w, http.StatusOK, page(out))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in api.UserInput
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	me := s.currentAccount(r)
	if !isCompanyAdmin(me) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	if in.Username == "" || in.Password == "" || in.Password != in.ConfirmPassword {
		writeDetail(w, http.StatusBadRequest, "invalid user data")
		return
	}
	if _, exists := s.accounts[in.Username]; exists {
		writeDetail(w, http.StatusBadRequest, "username already exists")
		return
	}
	s.nextID++
	a := &Account{
		ID:       s.nextID,
		Username: in.Username,
		Password: in.Password,
		Email:    in.Email,
		Active:   true,
		Profile: api.Profile{
			FirstName:   in.FirstName,
			LastName:    in.LastName,
			CompanyID:   me.Profile.CompanyID,
			Company:     me.Profile.Company,
			CompanyRole: in.CompanyRole,
		},
	}
	s.accounts[a.Username] = a
	writeJSON(w, http.StatusCreated, userOf(a))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in api.UserInput
	if !decode(w, r, &in) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !isCompanyAdmin(s.currentAccount(r)) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	a := s.accountByIDLocked(id)
	if a == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	if in.Email != "" {
		a.Email = in.Email
	}
	if in.FirstName != "" {
		a.Profile.FirstName = in.FirstName
	}
	if in.LastName != "" {
		a.Profile.LastName = in.LastName
	}
	if in.CompanyRole != "" {
		a.Profile.CompanyRole = in.CompanyRole
	}
	if in.IsActive != nil {
		a.Active = *in.IsActive
	}
	writeJSON(w, http.StatusOK, userOf(a))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !isCompanyAdmin(s.currentAccount(r)) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	a := s.accountByIDLocked(id)
	if a == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	delete(s.accounts, a.Username)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetUserPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !isCompanyAdmin(s.currentAccount(r)) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	a := s.accountByIDLocked(id)
	if a == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	a.Password = "temp-" + strconv.FormatInt(a.ID, 10)
	a.RequiresPasswordChange = true
	a.Profile.RequiresPasswordChange = true
	writeJSON(w, http.StatusOK, map[string]string{"detail": "password reset"})
}

func (s *Server) handleToggleActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !isCompanyAdmin(s.currentAccount(r)) {
		writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
		return
	}
	a := s.accountByIDLocked(id)
	if a == nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	a.Active = !a.Active
	writeJSON(w, http.StatusOK, userOf(a))
}

func (s *Server) accountByIDLocked(id int64) *Account {
	for _, a := range s.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}
