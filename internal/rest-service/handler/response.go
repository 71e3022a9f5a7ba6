package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/p2p_docs/internal/rest-service/auth"
	"github.com/konorlevich/p2p_docs/internal/rest-service/database"
	"github.com/konorlevich/p2p_docs/internal/rest-service/storage"
)

const msgInternal = "something went wrong, please try later"

type errorResponse struct {
	Detail string `json:"detail"`
}

type signupResponse struct {
	Msg    string    `json:"msg"`
	UserID uuid.UUID `json:"user_id"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type documentResponse struct {
	ID         uuid.UUID `json:"id"`
	Filename   string    `json:"filename"`
	OwnerP2PID string    `json:"owner_p2p_id"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

type documentListResponse struct {
	Documents []documentResponse `json:"documents"`
}

type userResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	P2PID    string    `json:"p2p_id"`
	IsAdmin  bool      `json:"is_admin"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func newDocumentResponse(d *database.Document) documentResponse {
	return documentResponse{
		ID:         d.ID,
		Filename:   d.Filename,
		OwnerP2PID: d.OwnerP2PID,
		Size:       d.Size,
		CreatedAt:  d.CreatedAt,
	}
}

func newUserResponse(u *database.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		P2PID:    u.P2PID,
		IsAdmin:  u.IsAdmin,
	}
}

func writeJSON(rw http.ResponseWriter, status int, body any, l *log.Entry) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(body); err != nil {
		l.WithError(err).Warn("can't write response")
	}
}

func writeDetail(rw http.ResponseWriter, status int, detail string, l *log.Entry) {
	if status == http.StatusUnauthorized {
		rw.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(rw, status, errorResponse{Detail: detail}, l)
}

// writeError maps service and request errors to a status and a client-safe
// message. Anything unrecognised is a 500 with a generic message.
func writeError(rw http.ResponseWriter, err error, l *log.Entry) {
	status, detail := http.StatusInternalServerError, msgInternal
	switch {
	case errors.Is(err, auth.ErrConflict):
		status, detail = http.StatusBadRequest, "User already exists"
	case errors.Is(err, auth.ErrUnauthorized):
		status, detail = http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, auth.ErrInvalidToken):
		status, detail = http.StatusUnauthorized, "Invalid token"
	case errors.Is(err, storage.ErrFileNotFound):
		status, detail = http.StatusNotFound, "Document not found"
	case errors.Is(err, errNoPeerID):
		status, detail = http.StatusBadRequest, "p2p_id parameter is required"
	case errors.Is(err, auth.ErrEmptyField),
		errors.Is(err, auth.ErrPasswordLong),
		errors.Is(err, storage.ErrNoOwner),
		errors.Is(err, storage.ErrNothingToSave),
		errors.Is(err, errInvalidInput),
		errors.Is(err, errCantParseForm),
		errors.Is(err, errCantParseBody),
		errors.Is(err, errNoFile),
		errors.Is(err, errBadDocumentID):
		status, detail = http.StatusBadRequest, err.Error()
	}
	if status == http.StatusInternalServerError {
		l.WithError(err).Error("request failed")
	}
	writeDetail(rw, status, detail, l)
}
