package handler

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.FatalLevel)
	return logger.WithField("in_test", true)
}

// createMultipartRequest builds a multipart request with optional file content and extra fields
func createMultipartRequest(
	target string,
	includeFile bool,
	filename, fileContent string,
	fields map[string]string) *http.Request {
	var buffer bytes.Buffer
	mw := multipart.NewWriter(&buffer)

	if includeFile {
		fw, err := mw.CreateFormFile(formFieldFile, filename)
		if err != nil {
			panic(err)
		}
		if _, err = fw.Write([]byte(fileContent)); err != nil {
			panic(err)
		}
	}
	for name, val := range fields {
		if err := mw.WriteField(name, val); err != nil {
			panic(err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buffer)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func createFormRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func createJSONRequest(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestNewFileData(t *testing.T) {
	tests := []struct {
		description   string
		request       *http.Request
		expectedError error
		wantName      string
		wantContent   string
	}{
		{
			description: "file provided",
			request:     createMultipartRequest("/documents/upload", true, "notes.txt", "hello", nil),
			wantName:    "notes.txt",
			wantContent: "hello",
		},
		{
			description: "file with a path in its name",
			request:     createMultipartRequest("/documents/upload", true, "dir/report.pdf", "%PDF", nil),
			wantName:    "report.pdf",
			wantContent: "%PDF",
		},
		{
			description:   "no file",
			request:       createMultipartRequest("/documents/upload", false, "", "", map[string]string{"other": "x"}),
			expectedError: errNoFile,
		},
		{
			description:   "not multipart",
			request:       httptest.NewRequest(http.MethodPost, "/documents/upload", strings.NewReader("bad content")),
			expectedError: errCantParseForm,
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			fd, err := newFileData(tc.request, getLogger())
			if !errors.Is(err, tc.expectedError) {
				t.Fatalf("Expected error %v, got %v", tc.expectedError, err)
			}
			if tc.expectedError != nil {
				assert.Nil(t, fd)
				return
			}
			defer fd.f.Close()
			assert.Equal(t, tc.wantName, fd.header.Filename)
			b, err := io.ReadAll(fd.f)
			require.NoError(t, err)
			assert.Equal(t, tc.wantContent, string(b))
		})
	}
}

func TestNewSignupData(t *testing.T) {
	tests := []struct {
		description   string
		body          string
		expectedError error
		want          *signupData
		wantMessage   string
	}{
		{
			description: "valid",
			body:        `{"username":" alice ","email":"a@x.com","password":"pw123"}`,
			want:        &signupData{Username: "alice", Email: "a@x.com", Password: "pw123"},
		},
		{
			description:   "broken json",
			body:          `{"username":`,
			expectedError: errCantParseBody,
		},
		{
			description:   "missing password",
			body:          `{"username":"alice","email":"a@x.com"}`,
			expectedError: errInvalidInput,
			wantMessage:   "password is required",
		},
		{
			description:   "bad email",
			body:          `{"username":"alice","email":"not-an-email","password":"pw"}`,
			expectedError: errInvalidInput,
			wantMessage:   "email is not a valid email address",
		},
		{
			description:   "password too long",
			body:          `{"username":"alice","email":"a@x.com","password":"` + strings.Repeat("p", 73) + `"}`,
			expectedError: errInvalidInput,
			wantMessage:   "password must be at most 72 characters",
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			sd, err := newSignupData(createJSONRequest("/signup", tc.body), getLogger())
			if !errors.Is(err, tc.expectedError) {
				t.Fatalf("Expected error %v, got %v", tc.expectedError, err)
			}
			if tc.wantMessage != "" {
				assert.Contains(t, err.Error(), tc.wantMessage)
			}
			assert.Equal(t, tc.want, sd)
		})
	}
}

func TestNewLoginData(t *testing.T) {
	tests := []struct {
		description   string
		request       *http.Request
		expectedError error
		want          *loginData
	}{
		{
			description: "url encoded form",
			request:     createFormRequest("/login", url.Values{"username": {"alice"}, "password": {"pw123"}}),
			want:        &loginData{Username: "alice", Password: "pw123"},
		},
		{
			description: "multipart form",
			request: createMultipartRequest("/login", false, "", "", map[string]string{
				"username": "alice",
				"password": "pw123",
			}),
			want: &loginData{Username: "alice", Password: "pw123"},
		},
		{
			description: "json body",
			request:     createJSONRequest("/login", `{"username":"alice","password":"pw123"}`),
			want:        &loginData{Username: "alice", Password: "pw123"},
		},
		{
			description:   "missing password",
			request:       createFormRequest("/login", url.Values{"username": {"alice"}}),
			expectedError: errInvalidInput,
		},
		{
			description:   "broken json",
			request:       createJSONRequest("/login", `{`),
			expectedError: errCantParseBody,
		},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			ld, err := newLoginData(tc.request, getLogger())
			if !errors.Is(err, tc.expectedError) {
				t.Fatalf("Expected error %v, got %v", tc.expectedError, err)
			}
			assert.Equal(t, tc.want, ld)
		})
	}
}

func TestPeerIDFromQuery(t *testing.T) {
	got, err := peerIDFromQuery(httptest.NewRequest(http.MethodGet, "/documents/download/?p2p_id=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	for _, target := range []string{"/documents/download/", "/documents/download/?p2p_id=", "/documents/download/?p2p_id=%20"} {
		_, err := peerIDFromQuery(httptest.NewRequest(http.MethodGet, target, nil))
		assert.ErrorIs(t, err, errNoPeerID, target)
	}
}

func TestDocumentIDFromPath(t *testing.T) {
	id := uuid.New()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetPathValue("id", id.String())
	got, err := documentIDFromPath(r)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	r.SetPathValue("id", "42")
	_, err = documentIDFromPath(r)
	assert.ErrorIs(t, err, errBadDocumentID)
}
