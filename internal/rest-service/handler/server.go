package handler

import (
	"context"
	"io"
	"mime"
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/p2p_docs/internal/rest-service/auth"
	"github.com/konorlevich/p2p_docs/internal/rest-service/database"
	"github.com/konorlevich/p2p_docs/internal/rest-service/handler/middleware"
	"github.com/konorlevich/p2p_docs/internal/rest-service/storage"
)

type AuthService interface {
	middleware.Authenticator
	Signup(ctx context.Context, username, email, password string) (*auth.SignupResult, error)
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
}

type DocumentService interface {
	SaveFile(ctx context.Context, owner, filename string, f io.Reader) (*database.Document, error)
	GetFileByOwner(ctx context.Context, owner string) (io.ReadCloser, *database.Document, error)
	GetFile(ctx context.Context, id uuid.UUID) (io.ReadCloser, *database.Document, error)
	ListFiles(ctx context.Context, owner string) ([]*database.Document, error)
}

// HealthCheck reports whether the backing store is reachable.
type HealthCheck func(ctx context.Context) error

func NewHandler(authService AuthService, docs DocumentService, health HealthCheck, l *log.Entry) *http.ServeMux {
	handler := http.NewServeMux()
	checkAuth := middleware.CheckAuth(authService, l)

	handler.HandleFunc("POST /signup", signup(authService, l))
	handler.HandleFunc("POST /login", login(authService, l))

	handler.Handle("POST /documents/upload", checkAuth(uploadFile(docs, l)))
	handler.HandleFunc("GET /documents/download", downloadByPeer(docs, l))
	handler.HandleFunc("GET /documents/download/{$}", downloadByPeer(docs, l))
	handler.Handle("GET /documents", checkAuth(listFiles(docs, l)))
	handler.Handle("GET /documents/{id}/download", checkAuth(downloadOwn(docs, l)))

	handler.Handle("GET /users/me", checkAuth(currentUser(l)))
	handler.HandleFunc("GET /health", healthCheck(health, l))
	return handler
}

func requestLogger(r *http.Request, l *log.Entry) *log.Entry {
	return l.WithFields(log.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"client": r.RemoteAddr,
	})
}

func signup(s AuthService, logger *log.Entry) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := requestLogger(r, logger)
		sd, err := newSignupData(r, l)
		if err != nil {
			writeError(rw, err, l)
			return
		}

		res, err := s.Signup(r.Context(), sd.Username, sd.Email, sd.Password)
		if err != nil {
			writeError(rw, err, l)
			return
		}
		writeJSON(rw, http.StatusOK, signupResponse{Msg: res.Message, UserID: res.UserID}, l)
	}
}

func login(s AuthService, logger *log.Entry) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := requestLogger(r, logger)
		ld, err := newLoginData(r, l)
		if err != nil {
			writeError(rw, err, l)
			return
		}

		res, err := s.Login(r.Context(), ld.Username, ld.Password)
		if err != nil {
			writeError(rw, err, l)
			return
		}
		writeJSON(rw, http.StatusOK, tokenResponse{AccessToken: res.AccessToken, TokenType: res.TokenType}, l)
	}
}

func uploadFile(docs DocumentService, logger *log.Entry) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := requestLogger(r, logger)
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			writeError(rw, auth.ErrInvalidToken, l)
			return
		}
		l = l.WithField(fieldNameUsername, user.Username)

		fd, err := newFileData(r, l)
		if err != nil {
			writeError(rw, err, l)
			return
		}
		defer func() {
			_ = fd.f.Close()
		}()

		doc, err := docs.SaveFile(r.Context(), user.P2PID, fd.header.Filename, fd.f)
		if err != nil {
			writeError(rw, err, l)
			return
		}
		l.WithFields(log.Fields{fieldNameDocument: doc.ID, fieldNameFileName: doc.Filename}).Info("file saved")
		writeJSON(rw, http.StatusOK, newDocumentResponse(doc), l)
	}
}

// downloadByPeer serves the newest document of a peer. It needs no token:
// peers fetch each other's documents by p2p id.
func downloadByPeer(docs DocumentService, logger *log.Entry) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := requestLogger(r, logger)
		peerID, err := peerIDFromQuery(r)
		if err != nil {
			writeError(rw, err, l)
			return
		}
		l = l.WithField(fieldNamePeerID, peerID)

		rc, doc, err := docs.GetFileByOwner(r.Context(), peerID)
		if err != nil {
			writeError(rw, err, l)
			return
		}
		sendFile(rw, rc, doc, l)
	}
}

func downloadOwn(docs DocumentService, logger *log.Entry) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := requestLogger(r, logger)
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			writeError(rw, auth.ErrInvalidToken, l)
			return
		}
		id, err := documentIDFromPath(r)
		if err != nil {
			writeError(rw, err, l)
			return
		}
		l = l.WithFields(log.Fields{fieldNameUsername: user.Username, fieldNameDocument: id})

		rc, doc, err := docs.GetFile(r.Context(), id)
		if err != nil {
			writeError(rw, err, l)
			return
		}
		// someone else's document looks exactly like a missing one
		if doc.OwnerP2PID != user.P2PID {
			_ = rc.Close()
			writeError(rw, storage.ErrFileNotFound, l)
			return
		}
		sendFile(rw, rc, doc, l)
	}
}

func listFiles(docs DocumentService, logger *log.Entry) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := requestLogger(r, logger)
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			writeError(rw, auth.ErrInvalidToken, l)
			return
		}

		list, err := docs.ListFiles(r.Context(), user.P2PID)
		if err != nil {
			writeError(rw, err, l)
			return
		}
		res := documentListResponse{Documents: make([]documentResponse, 0, len(list))}
		for _, d := range list {
			res.Documents = append(res.Documents, newDocumentResponse(d))
		}
		writeJSON(rw, http.StatusOK, res, l)
	}
}

func currentUser(logger *log.Entry) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := requestLogger(r, logger)
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			writeError(rw, auth.ErrInvalidToken, l)
			return
		}
		writeJSON(rw, http.StatusOK, newUserResponse(user), l)
	}
}

func healthCheck(health HealthCheck, logger *log.Entry) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		l := requestLogger(r, logger)
		if health != nil {
			if err := health(r.Context()); err != nil {
				l.WithError(err).Error("health check failed")
				writeJSON(rw, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"}, l)
				return
			}
		}
		writeJSON(rw, http.StatusOK, healthResponse{Status: "ok"}, l)
	}
}

func sendFile(rw http.ResponseWriter, rc io.ReadCloser, doc *database.Document, l *log.Entry) {
	defer func() {
		_ = rc.Close()
	}()
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename})
	if disposition == "" {
		disposition = "attachment"
	}
	rw.Header().Set("Content-Type", "application/octet-stream")
	rw.Header().Set("Content-Disposition", disposition)

	n, err := io.Copy(rw, rc)
	if err != nil {
		// headers are gone already, the client sees a truncated body
		l.WithError(err).WithField("written", n).Error(storage.ErrCantReadFile)
		return
	}
	l.WithFields(log.Fields{fieldNameDocument: doc.ID, "size": n}).Info("file sent")
}
