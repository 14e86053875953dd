package backend

import (
	"fmt"
	"net/http"

	"github.com/courseloc/courseloc/core"
	"github.com/julienschmidt/httprouter"
)

// editsBody carries content and metadata edits. Metadata fields are
// pointers, absent means unchanged.
type editsBody struct {
	Content     map[string]string `json:"content"`
	Category    *string           `json:"category"`
	Page        *string           `json:"page"`
	Section     *string           `json:"section"`
	Description *string           `json:"description"`
}

func (b editsBody) edits() (core.UnitEdits, error) {
	var content = core.Content{}
	for code, text := range b.Content {
		lang, err := core.ParseLanguage(code)
		if err != nil {
			return core.UnitEdits{}, fmt.Errorf("%w: %v", core.ErrMissingRequiredField, err)
		}
		content[lang] = text
	}
	return core.UnitEdits{
		Content: content,
		Metadata: core.Metadata{
			Category:    b.Category,
			Page:        b.Page,
			Section:     b.Section,
			Description: b.Description,
		},
	}, nil
}

func submit(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {

	var body editsBody
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	edits, err := body.edits()
	if err != nil {
		return err
	}

	unit, warnings, err := b.db.Submit(token, params.ByName("key"), edits)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, transitionResponse{Unit: renderUnit(unit), Warnings: renderWarnings(warnings)})
	return nil
}

func saveDraft(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {

	var body editsBody
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	edits, err := body.edits()
	if err != nil {
		return err
	}

	unit, err := b.db.SaveDraft(token, params.ByName("key"), edits)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, transitionResponse{Unit: renderUnit(unit), Warnings: []string{}})
	return nil
}

func directEdit(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {

	var body struct {
		editsBody
		Notes string `json:"notes"`
	}
	if err := decodeBody(req, &body); err != nil {
		return err
	}
	edits, err := body.edits()
	if err != nil {
		return err
	}

	unit, warnings, err := b.db.DirectEdit(token, params.ByName("key"), edits, body.Notes)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, transitionResponse{Unit: renderUnit(unit), Warnings: renderWarnings(warnings)})
	return nil
}

func getUnit(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {
	unit, err := b.db.GetUnit(token, params.ByName("key"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, renderUnit(unit))
	return nil
}

func listUnits(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {

	var query = req.URL.Query()
	units, err := b.db.ListUnits(token, core.UnitFilter{
		Category: query.Get("category"),
		Page:     query.Get("page"),
		Status:   core.Status(query.Get("status")),
	})
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, renderUnits(units))
	return nil
}

func revisions(b *Backend, w http.ResponseWriter, req *http.Request, token string, params httprouter.Params) error {
	revisions, err := b.db.UnitRevisions(token, params.ByName("key"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, renderRevisions(revisions))
	return nil
}
