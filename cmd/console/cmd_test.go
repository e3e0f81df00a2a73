package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invigilation/internal/apperrors"
	"invigilation/internal/client"
	"invigilation/internal/config"
	"invigilation/internal/model"
	"invigilation/internal/session"
)

var roster = []model.Faculty{
	{ID: 1, Name: "Ada Lovelace", MobileNumber: "9000000001", Email: "ada@college.edu", RFIDTag: "1234567890"},
	{ID: 2, Name: "Bob Stone", MobileNumber: "9000000002", Email: "bob@college.edu"},
	{ID: 3, Name: "Cy Young", MobileNumber: "8111111111", Email: "cy@college.edu", IsAdmin: true},
}

func TestFilterFaculty(t *testing.T) {
	names := func(fs []model.Faculty) []string {
		var out []string
		for _, f := range fs {
			out = append(out, f.Name)
		}
		return out
	}
	assert.Len(t, filterFaculty(roster, ""), 3)
	assert.Equal(t, []string{"Ada Lovelace"}, names(filterFaculty(roster, "ADA")))
	assert.Equal(t, []string{"Bob Stone"}, names(filterFaculty(roster, "bob@")))
	assert.Equal(t, []string{"Cy Young"}, names(filterFaculty(roster, "8111")))
	assert.Empty(t, filterFaculty(roster, "zzz"))
}

type harness struct {
	cli    *commandLine
	sess   *session.Session
	out    *bytes.Buffer
	errOut *bytes.Buffer
	hits   atomic.Int32
}

func setup(t *testing.T, admin bool, h http.HandlerFunc) *harness {
	t.Helper()
	hs := &harness{out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hs.hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	sess, err := session.New(&session.MemoryStore{})
	require.NoError(t, err)
	require.NoError(t, sess.Begin(model.LoginResult{Token: "tok", IsAdmin: admin, User: model.User{ID: 1, Name: "Ada Lovelace"}}))
	hs.sess = sess
	hs.cli = &commandLine{
		cfg:    config.Console{BaseURL: srv.URL, PollInterval: time.Hour, StatusReset: time.Second, RequestTimeout: time.Second},
		sess:   sess,
		api:    client.New(srv.URL, sess, time.Second),
		out:    hs.out,
		errOut: hs.errOut,
		in:     strings.NewReader(""),
	}
	return hs
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRunWithoutCommandPrintsUsage(t *testing.T) {
	hs := setup(t, true, func(w http.ResponseWriter, r *http.Request) {})
	err := hs.cli.run(context.Background(), []string{"console"})
	assert.Equal(t, errHelp, err)
	assert.Contains(t, hs.out.String(), "Usage:")
	assert.Equal(t, errHelp, hs.cli.run(context.Background(), []string{"console", "bogus"}))
}

func TestFacultyListSearch(t *testing.T) {
	hs := setup(t, true, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/faculty", r.URL.Path)
		reply(w, http.StatusOK, roster)
	})
	require.NoError(t, hs.cli.run(context.Background(), []string{"console", "faculty", "list", "-q", "stone"}))
	out := hs.out.String()
	assert.Contains(t, out, "Bob Stone")
	assert.NotContains(t, out, "Ada Lovelace")
}

func TestAuthFailurePrintsRedirect(t *testing.T) {
	hs := setup(t, true, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusUnauthorized, map[string]string{"message": "Token has expired"})
	})
	err := hs.cli.run(context.Background(), []string{"console", "faculty", "list"})
	require.Error(t, err)
	hs.cli.report(err)
	assert.Contains(t, hs.errOut.String(), "/login?role=admin")
	assert.False(t, hs.sess.Authenticated())
}

func TestGenerateValidatesLocally(t *testing.T) {
	hs := setup(t, true, func(w http.ResponseWriter, r *http.Request) {})
	err := hs.cli.run(context.Background(), []string{"console", "alloc", "generate", "-date", "2025-06-01", "-slot", "bad"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Zero(t, hs.hits.Load())

	err = hs.cli.run(context.Background(), []string{"console", "alloc", "generate", "-nope"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestGeneratePrintsRefetchedRows(t *testing.T) {
	hs := setup(t, true, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/allocations/generate":
			reply(w, http.StatusOK, map[string]any{"success": true, "message": "Successfully generated 1 allocations", "count": 1})
		case "/api/allocations":
			reply(w, http.StatusOK, []model.Allocation{
				{ID: 9, FacultyName: "Bob Stone", VenueName: "Hall A", Date: "2025-06-01", TimeSlot: model.SlotMorning},
				{ID: 10, FacultyName: "Old Row", VenueName: "Hall B", Date: "2025-05-30", TimeSlot: model.SlotMorning},
			})
		default:
			http.NotFound(w, r)
		}
	})
	require.NoError(t, hs.cli.run(context.Background(),
		[]string{"console", "alloc", "generate", "-date", "2025-06-01", "-slot", "08:00-12:00", "-per-venue", "1"}))
	out := hs.out.String()
	assert.Contains(t, out, "Successfully generated 1 allocations")
	assert.Contains(t, out, "Bob Stone")
	assert.NotContains(t, out, "Old Row")
}

func TestAllocExportWritesPDF(t *testing.T) {
	hs := setup(t, true, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, []model.Allocation{{ID: 1, FacultyName: "Ada", VenueName: "Hall", Date: "2025-06-01", TimeSlot: model.SlotMorning}})
	})
	dest := filepath.Join(t.TempDir(), "out.pdf")
	require.NoError(t, hs.cli.run(context.Background(), []string{"console", "alloc", "export", "-date", "2025-06-01", "-out", dest}))
	raw, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF")))
}

func TestLoginPromptsForPassword(t *testing.T) {
	hs := setup(t, false, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, model.LoginResult{Success: true, Token: "new", IsAdmin: true, User: model.User{ID: 3, Name: "Cy Young"}})
	})
	require.NoError(t, hs.sess.End())

	orig := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = orig })
	readPasswordFunc = func() ([]byte, error) { return []byte("8111111111"), nil }
	require.NoError(t, hs.cli.run(context.Background(), []string{"console", "login", "-email", "cy@college.edu"}))
	assert.Contains(t, hs.out.String(), "Signed in as Cy Young (admin)")
	assert.Equal(t, "new", hs.sess.Token())
}

func TestKioskWithoutSessionRedirects(t *testing.T) {
	hs := setup(t, false, func(w http.ResponseWriter, r *http.Request) {})
	require.NoError(t, hs.sess.End())
	err := hs.cli.run(context.Background(), []string{"console", "kiosk"})
	redirect, ok := client.IsRedirect(err)
	assert.True(t, ok)
	assert.Equal(t, session.LoginPath, redirect)
	assert.Zero(t, hs.hits.Load())
}

func TestKioskRejectsShortTag(t *testing.T) {
	hs := setup(t, true, func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, []model.AttendanceRecord{})
	})
	hs.cli.in = strings.NewReader("123\n")
	require.NoError(t, hs.cli.run(context.Background(), []string{"console", "kiosk"}))
	assert.Contains(t, hs.out.String(), "RFID tag must be exactly 10 digits")
}
