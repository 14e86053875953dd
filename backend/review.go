package backend

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

func beginReview(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {

	unit, warnings, err := b.db.BeginReview(token, params.ByName("key"))
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, transitionResponse{Unit: renderUnit(unit), Warnings: renderWarnings(warnings)})
	return nil
}

func approve(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {

	var body struct {
		Notes string `json:"notes"`
	}
	if err := decodeBody(req, &body); err != nil {
		return err
	}

	unit, warnings, err := b.db.Approve(token, params.ByName("key"), body.Notes)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, transitionResponse{Unit: renderUnit(unit), Warnings: renderWarnings(warnings)})
	return nil
}

func reject(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {

	var body struct {
		Reason string `json:"reason"`
		Notes  string `json:"notes"`
	}
	if err := decodeBody(req, &body); err != nil {
		return err
	}

	unit, warnings, err := b.db.Reject(token, params.ByName("key"), body.Reason, body.Notes)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, transitionResponse{Unit: renderUnit(unit), Warnings: renderWarnings(warnings)})
	return nil
}

func listPending(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {
	units, err := b.db.ListPending(token)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, renderUnits(units))
	return nil
}

func auditTrail(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {
	entries, err := b.db.AuditTrail(token, params.ByName("key"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, renderAudit(entries))
	return nil
}

func stats(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {
	stats, err := b.db.ApprovalStats(token)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, stats)
	return nil
}
