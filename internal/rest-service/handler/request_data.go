package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	fieldNameUsername = "username"
	fieldNameFileName = "filename"
	fieldNamePeerID   = "p2p_id"
	fieldNameDocument = "document_id"

	formFieldFile = "file"

	// uploads above this size are spilled to temp files by net/http
	maxUploadMemory = 32 << 20
)

var (
	errCantParseForm = errors.New("can't parse request form")
	errCantParseBody = errors.New("can't parse request body")
	errNoFile        = errors.New("file has not been provided")
	errNoPeerID      = errors.New("p2p_id is required")
	errBadDocumentID = errors.New("invalid document id")
	errInvalidInput  = errors.New("invalid input")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type signupData struct {
	Username string `json:"username" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=100"`
	// bcrypt ignores everything past 72 bytes
	Password string `json:"password" validate:"required,max=72"`
}

type loginData struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type fileData struct {
	f      multipart.File
	header *multipart.FileHeader
}

func newSignupData(r *http.Request, l *log.Entry) (*signupData, error) {
	sd := &signupData{}
	if err := json.NewDecoder(r.Body).Decode(sd); err != nil {
		l.WithError(err).Error(errCantParseBody)
		return nil, errCantParseBody
	}
	sd.Username = strings.TrimSpace(sd.Username)
	sd.Email = strings.TrimSpace(sd.Email)
	if err := validateStruct(sd); err != nil {
		l.WithField(fieldNameUsername, sd.Username).WithError(err).Warn("invalid signup data")
		return nil, err
	}
	return sd, nil
}

// newLoginData reads OAuth2 password-flow form fields. A JSON body is
// accepted as well.
func newLoginData(r *http.Request, l *log.Entry) (*loginData, error) {
	ld := &loginData{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(ld); err != nil {
			l.WithError(err).Error(errCantParseBody)
			return nil, errCantParseBody
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			l.WithError(err).Error(errCantParseForm)
			return nil, errCantParseForm
		}
		ld.Username, ld.Password = r.PostFormValue("username"), r.PostFormValue("password")
	default:
		if err := r.ParseForm(); err != nil {
			l.WithError(err).Error(errCantParseForm)
			return nil, errCantParseForm
		}
		ld.Username, ld.Password = r.PostForm.Get("username"), r.PostForm.Get("password")
	}
	if err := validateStruct(ld); err != nil {
		return nil, err
	}
	return ld, nil
}

// newFileData takes the "file" part of a multipart upload. The caller closes it.
func newFileData(r *http.Request, l *log.Entry) (*fileData, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		l.WithError(err).Error(errCantParseForm)
		return nil, errCantParseForm
	}
	f, fh, err := r.FormFile(formFieldFile)
	if err != nil {
		l.WithError(err).Error(errNoFile)
		return nil, errNoFile
	}
	return &fileData{f: f, header: fh}, nil
}

func peerIDFromQuery(r *http.Request) (string, error) {
	peerID := strings.TrimSpace(r.URL.Query().Get(fieldNamePeerID))
	if peerID == "" {
		return "", errNoPeerID
	}
	return peerID, nil
}

func documentIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errBadDocumentID
	}
	return id, nil
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", errInvalidInput, err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", errInvalidInput, strings.Join(problems, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " is not a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q check", field, fe.Tag())
	}
}
