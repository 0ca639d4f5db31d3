package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"iaeco.app/internal/api"
)

func withUser(r *http.Request, username string) context.Context {
	return context.WithValue(r.Context(), ctxUser{}, username)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		writeDetail(w, http.StatusUnsupportedMediaType, "Unsupported media type")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "JSON parse error")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}

func page[T any](items []T) api.Page[T] {
	if items == nil {
		items = []T{}
	}
	return api.Page[T]{Count: len(items), Results: items}
}

func userOf(a *Account) api.User {
	u := api.User{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		FirstName: a.Profile.FirstName,
		LastName:  a.Profile.LastName,
		IsActive:  a.Active,
	}
	if a.Profile.CompanyRole != "" {
		u.CompanyRoles = []api.CompanyRoleAssignment{{CompanyID: a.Profile.CompanyID, Role: a.Profile.CompanyRole}}
	}
	return u
}

func fileType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "PDF"
	case ".xls", ".xlsx":
		return "EXCEL"
	case ".csv":
		return "CSV"
	case ".png", ".jpg", ".jpeg", ".gif":
		return "IMAGE"
	}
	return "OTHER"
}
