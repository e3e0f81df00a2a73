package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"invigilation/internal/allocation"
	"invigilation/internal/attendance"
	"invigilation/internal/auth"
	"invigilation/internal/model"
	"invigilation/internal/registry"
	"invigilation/internal/store/memstore"
)

type testServer struct {
	router *gin.Engine
	store  *memstore.Store
	tokens *auth.Issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memstore.New()
	ctx := context.Background()
	faculty := []model.Faculty{
		{Name: "Admin", MobileNumber: "9000000000", Email: "admin@x.edu", IsAdmin: true},
		{Name: "Asha", MobileNumber: "9000000001", Email: "asha@x.edu", RFIDTag: "1111111111"},
		{Name: "Ravi", MobileNumber: "9000000002", Email: "ravi@x.edu", RFIDTag: "2222222222"},
	}
	for _, f := range faculty {
		_, err := st.CreateFaculty(ctx, f)
		require.NoError(t, err)
	}
	_, err := st.CreateVenue(ctx, model.Venue{Name: "Hall A", Location: "Block 1", Capacity: 40})
	require.NoError(t, err)
	_, err = st.CreateVenue(ctx, model.Venue{Name: "Hall B", Location: "Block 2", Capacity: 40})
	require.NoError(t, err)

	tokens := auth.NewIssuer("invigilation-test", "secret", time.Hour)
	reg := registry.NewService(st)
	h := New(reg,
		allocation.NewService(st, st, allocation.NewMemoryLocker(), nil),
		attendance.NewService(st, st, st),
		tokens)

	r := gin.New()
	h.Register(r, nil)
	return &testServer{router: r, store: st, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, email, password string) model.LoginResult {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res model.LoginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Message
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	res := s.login(t, "admin@x.edu", "9000000000")
	assert.True(t, res.Success)
	assert.True(t, res.IsAdmin)
	assert.Equal(t, "Admin", res.User.Name)
	assert.NotEmpty(t, res.Token)

	w := s.do(t, http.MethodPost, "/api/login", "", gin.H{"email": "admin@x.edu", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", message(t, w))
}

func TestAuthFailures(t *testing.T) {
	s := newTestServer(t)
	faculty := s.login(t, "asha@x.edu", "9000000001").Token

	expired := auth.NewIssuer("invigilation-test", "secret", time.Minute)
	expired.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Issue(1, true)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		status  int
		message string
	}{
		{"missing", "", http.StatusUnauthorized, "Missing or invalid token"},
		{"expired", old.AccessToken, http.StatusUnauthorized, "Token has expired"},
		{"garbage", "not-a-jwt", http.StatusUnprocessableEntity, "Invalid token"},
		{"not admin", faculty, http.StatusForbidden, "Unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/api/faculty", tt.token, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, message(t, w))
		})
	}
}

func TestDeletedUserTokenIsRejected(t *testing.T) {
	s := newTestServer(t)
	tok := s.login(t, "ravi@x.edu", "9000000002").Token
	_, err := s.store.DeleteFaculty(context.Background(), 3)
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/current_user", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFacultyCRUD(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin@x.edu", "9000000000").Token

	w := s.do(t, http.MethodPost, "/api/faculty", admin, gin.H{
		"name": "Meera", "mobile_number": "9000000003", "email_id": "meera@x.edu", "rfid_tag": "12345",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "RFID tag must be exactly 10 digits", message(t, w))

	w = s.do(t, http.MethodPost, "/api/faculty", admin, gin.H{
		"name": "Meera", "mobile_number": "9000000003", "email_id": "meera@x.edu", "rfid_tag": "3333333333",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/faculty", admin, gin.H{
		"name": "Clone", "mobile_number": "9000000009", "email_id": "meera@x.edu",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/faculty", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Faculty
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 4)

	w = s.do(t, http.MethodDelete, "/api/faculty/4", admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodDelete, "/api/faculty/4", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodDelete, "/api/faculty/abc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/venues", admin, gin.H{"name": "Hall C", "location": "Block 3", "capacity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateMarkAndExport(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin@x.edu", "9000000000").Token

	w := s.do(t, http.MethodPost, "/api/allocations/generate", admin, gin.H{
		"date": "2025-06-01", "time_slot": "08:00-12:00", "faculty_per_venue": 2,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Not enough faculty available: 4 needed, but only 2 available", message(t, w))

	w = s.do(t, http.MethodPost, "/api/allocations/generate", admin, gin.H{
		"date": "2025-06-01", "time_slot": "10:00-11:00", "faculty_per_venue": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/allocations/generate", admin, gin.H{
		"date": "2025-06-01", "time_slot": "08:00-12:00", "faculty_per_venue": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Successfully generated 2 allocations", message(t, w))

	w = s.do(t, http.MethodGet, "/api/allocations", admin, nil)
	var allocs []model.Allocation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &allocs))
	require.Len(t, allocs, 2)

	w = s.do(t, http.MethodPost, "/api/attendance", admin, gin.H{"rfid_tag": "1234567890", "date": "2025-06-01"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Faculty not found", message(t, w))

	w = s.do(t, http.MethodPost, "/api/attendance", admin, gin.H{"rfid_tag": "1111111111", "date": "2025-06-01"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Attendance marked for Asha", message(t, w))

	ravi := s.login(t, "ravi@x.edu", "9000000002").Token
	w = s.do(t, http.MethodPost, "/api/attendance", ravi, gin.H{"rfid_tag": "2222222222", "date": "2025-06-01"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/attendance_records?date=2025-06-01", admin, nil)
	var recs []model.AttendanceRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 2)
	assert.True(t, recs[0].IsPresent)
	assert.Equal(t, "1111111111", recs[0].RFIDTag)
	assert.False(t, recs[1].IsPresent)

	w = s.do(t, http.MethodGet, "/api/attendance_records?date=2025-06-01&export=excel", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=attendance_2025-06-01.xlsx", w.Header().Get("Content-Disposition"))
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))

	w = s.do(t, http.MethodGet, "/api/attendance_records?date=2025-06-01&export=pdf", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = s.do(t, http.MethodGet, "/api/attendance_records?export=csv", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkImportVenues(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin@x.edu", "9000000000").Token

	wb := excelize.NewFile()
	rows := [][]interface{}{
		{"venue_id", "name", "location", "capacity"},
		{1, "Hall A+", "Block 1", 50},
		{"", "Hall D", "Block 4", 30},
	}
	for i := range rows {
		cellName, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, wb.SetSheetRow("Sheet1", cellName, &rows[i]))
	}
	var file bytes.Buffer
	require.NoError(t, wb.Write(&file))
	require.NoError(t, wb.Close())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "venues.xlsx")
	require.NoError(t, err)
	_, err = part.Write(file.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/bulk-import/venues", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Successfully imported 1 new venues and updated 1 existing venues", message(t, w))

	venues, err := s.store.ListVenues(context.Background())
	require.NoError(t, err)
	require.Len(t, venues, 3)
	assert.Equal(t, 50, venues[0].Capacity)
}
