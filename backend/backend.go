// Package backend exposes the approval workflow as a JSON API. It is a thin
// shell: identity travels as a bearer token into every core call, the
// handlers hold no state of their own.
package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/courseloc/courseloc/core"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

type Backend struct {
	db  *core.CoreDB
	log *logrus.Logger
}

func NewRouter(db *core.CoreDB, log *logrus.Logger) http.Handler {

	var b = &Backend{
		db:  db,
		log: log,
	}

	var router = httprouter.New()

	router.POST("/units/:key/submit", b.middleware(submit))
	router.POST("/units/:key/draft", b.middleware(saveDraft))
	router.POST("/units/:key/begin-review", b.middleware(beginReview))
	router.POST("/units/:key/approve", b.middleware(approve))
	router.POST("/units/:key/reject", b.middleware(reject))
	router.POST("/units/:key/direct-edit", b.middleware(directEdit))

	router.GET("/units", b.middleware(listUnits))
	router.GET("/units/:key", b.middleware(getUnit))
	router.GET("/units/:key/revisions", b.middleware(revisions))
	router.GET("/units/:key/audit", b.middleware(auditTrail))
	router.GET("/pending", b.middleware(listPending))
	router.GET("/stats", b.middleware(stats))

	return router
}

type handle func(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error

// middleware extracts the bearer token and maps handler errors to JSON
// responses. The token stays opaque here, the core resolves it.
func (b *Backend) middleware(f handle) httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, params httprouter.Params) {
		var token = bearerToken(req)
		if err := f(b, w, req, token, params); err != nil {
			b.writeError(w, err)
		}
	}
}

func bearerToken(req *http.Request) string {
	var header = req.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// httpStatus distinguishes "your request was rejected" from internal
// failures. Warnings never pass through here, they ride on success bodies.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrMissingRequiredField):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrPermissionDenied),
		errors.Is(err, core.ErrInsufficientScope),
		errors.Is(err, core.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidTransition),
		errors.Is(err, core.ErrConflictingTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (b *Backend) writeError(w http.ResponseWriter, err error) {
	var status = httpStatus(err)
	if status == http.StatusInternalServerError {
		b.log.WithError(err).Error("internal error")
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func decodeBody(req *http.Request, into interface{}) error {
	defer req.Body.Close()
	if err := json.NewDecoder(req.Body).Decode(into); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", core.ErrMissingRequiredField, err)
	}
	return nil
}
