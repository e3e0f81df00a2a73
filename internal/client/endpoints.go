package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"invigilation/internal/apperrors"
	"invigilation/internal/model"
	"invigilation/internal/report"
)

// Login authenticates and starts the session.
func (c *Client) Login(ctx context.Context, email, password string) (model.LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return model.LoginResult{}, apperrors.Validation("Email and password are required")
	}
	body, err := jsonBody(map[string]string{"email": email, "password": password})
	if err != nil {
		return model.LoginResult{}, err
	}
	var res model.LoginResult
	err = c.call(ctx, request{
		method:      http.MethodPost,
		path:        "/api/login",
		body:        body,
		contentType: "application/json",
		public:      true,
		fallback:    "Login failed",
	}, &res)
	if err != nil {
		return model.LoginResult{}, err
	}
	if err := c.Session.Begin(res); err != nil {
		return model.LoginResult{}, err
	}
	return res, nil
}

// Logout tells the service and always clears the local session.
func (c *Client) Logout(ctx context.Context) error {
	var callErr error
	if c.Session.Authenticated() {
		callErr = c.call(ctx, request{method: http.MethodPost, path: "/api/logout"}, nil)
	}
	if err := c.Session.End(); err != nil {
		return err
	}
	if _, ok := IsRedirect(callErr); ok {
		return nil
	}
	return callErr
}

func (c *Client) CurrentUser(ctx context.Context) (model.User, error) {
	var u model.User
	err := c.call(ctx, request{method: http.MethodGet, path: "/api/current_user"}, &u)
	return u, err
}

func (c *Client) ListFaculty(ctx context.Context) ([]model.Faculty, error) {
	var out []model.Faculty
	err := c.call(ctx, request{method: http.MethodGet, path: "/api/faculty", fallback: "Failed to fetch faculty"}, &out)
	return out, err
}

func (c *Client) AddFaculty(ctx context.Context, f model.Faculty) (string, error) {
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.MobileNumber) == "" || strings.TrimSpace(f.Email) == "" {
		return "", apperrors.Validation("Name, mobile number and email are required")
	}
	if f.RFIDTag != "" && !model.ValidRFIDTag(f.RFIDTag) {
		return "", apperrors.Validation("RFID tag must be exactly 10 digits")
	}
	return c.post(ctx, "/api/faculty", f, "Failed to add faculty")
}

func (c *Client) DeleteFaculty(ctx context.Context, id int64) (string, error) {
	var env envelope
	err := c.call(ctx, request{method: http.MethodDelete, path: fmt.Sprintf("/api/faculty/%d", id), fallback: "Failed to delete faculty"}, &env)
	return env.Message, err
}

func (c *Client) ListVenues(ctx context.Context) ([]model.Venue, error) {
	var out []model.Venue
	err := c.call(ctx, request{method: http.MethodGet, path: "/api/venues", fallback: "Failed to fetch venues"}, &out)
	return out, err
}

func (c *Client) AddVenue(ctx context.Context, v model.Venue) (string, error) {
	if strings.TrimSpace(v.Name) == "" || strings.TrimSpace(v.Location) == "" {
		return "", apperrors.Validation("Venue name and location are required")
	}
	if v.Capacity <= 0 {
		return "", apperrors.Validation("Capacity must be a positive number")
	}
	return c.post(ctx, "/api/venues", v, "Failed to add venue")
}

func (c *Client) DeleteVenue(ctx context.Context, id int64) (string, error) {
	var env envelope
	err := c.call(ctx, request{method: http.MethodDelete, path: fmt.Sprintf("/api/venues/%d", id), fallback: "Failed to delete venue"}, &env)
	return env.Message, err
}

func (c *Client) ListAllocations(ctx context.Context) ([]model.Allocation, error) {
	var out []model.Allocation
	err := c.call(ctx, request{method: http.MethodGet, path: "/api/allocations", fallback: "Failed to fetch allocations"}, &out)
	return out, err
}

func (c *Client) GenerateAllocations(ctx context.Context, req model.GenerateRequest) (string, error) {
	return c.post(ctx, "/api/allocations/generate", req, "Failed to generate allocations")
}

func (c *Client) AttendanceRecords(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	err := c.call(ctx, request{
		method:   http.MethodGet,
		path:     "/api/attendance_records",
		query:    url.Values{"date": {date}},
		fallback: "Failed to fetch attendance records",
	}, &out)
	return out, err
}

func (c *Client) MarkAttendance(ctx context.Context, req model.MarkRequest) (string, error) {
	return c.post(ctx, "/api/attendance", req, "Failed to mark attendance")
}

// ExportAttendance streams the service-rendered export to w and returns the
// file name the service suggested.
func (c *Client) ExportAttendance(ctx context.Context, date, format string, w io.Writer) (string, error) {
	ext := map[string]string{"excel": "xlsx", "pdf": "pdf"}[format]
	if ext == "" {
		return "", apperrors.Validation("Export format must be excel or pdf")
	}
	resp, err := c.send(ctx, request{
		method:   http.MethodGet,
		path:     "/api/attendance_records",
		query:    url.Values{"date": {date}, "export": {format}},
		fallback: "Failed to export attendance",
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	name := report.ExportFilename("attendance", date, ext)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return name, nil
}

// BulkImport uploads an .xlsx workbook of faculty or venues.
func (c *Client) BulkImport(ctx context.Context, kind, filename string, r io.Reader) (string, error) {
	if kind != "faculty" && kind != "venues" {
		return "", apperrors.Validation(fmt.Sprintf("Unknown import type %q", kind))
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		return "", apperrors.Validation("Please upload an XLSX file")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var env envelope
	err := c.call(ctx, request{
		method:      http.MethodPost,
		path:        "/api/bulk-import/" + kind,
		body:        pr,
		contentType: mw.FormDataContentType(),
		fallback:    "Import failed",
	}, &env)
	_ = pr.Close()
	return env.Message, err
}
