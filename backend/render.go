package backend

import (
	"github.com/courseloc/courseloc/core"
)

// unitJSON is the wire shape of a translation unit. Unix timestamps, zero
// omitted.
type unitJSON struct {
	Key            string            `json:"key"`
	Content        map[string]string `json:"content"`
	Category       string            `json:"category,omitempty"`
	Page           string            `json:"page,omitempty"`
	Section        string            `json:"section,omitempty"`
	Description    string            `json:"description,omitempty"`
	ApprovalStatus string            `json:"approvalStatus"`
	Version        int               `json:"version"`
	SubmittedBy    int               `json:"submittedBy,omitempty"`
	SubmittedAt    int64             `json:"submittedAt,omitempty"`
	ReviewedBy     int               `json:"reviewedBy,omitempty"`
	ReviewedAt     int64             `json:"reviewedAt,omitempty"`
	ReviewNotes    string            `json:"reviewNotes,omitempty"`
	PublishedAt    int64             `json:"publishedAt,omitempty"`
}

func renderUnit(u core.DBUnit) unitJSON {
	var content = map[string]string{}
	for lang, text := range u.Content() {
		content[string(lang)] = text
	}
	return unitJSON{
		Key:            u.Key(),
		Content:        content,
		Category:       u.Category(),
		Page:           u.Page(),
		Section:        u.Section(),
		Description:    u.Description(),
		ApprovalStatus: u.Status().String(),
		Version:        u.Version(),
		SubmittedBy:    u.SubmittedBy(),
		SubmittedAt:    u.SubmittedAt(),
		ReviewedBy:     u.ReviewedBy(),
		ReviewedAt:     u.ReviewedAt(),
		ReviewNotes:    u.ReviewNotes(),
		PublishedAt:    u.PublishedAt(),
	}
}

func renderUnits(units []*core.Unit) []unitJSON {
	var result = make([]unitJSON, len(units))
	for i, u := range units {
		result[i] = renderUnit(u)
	}
	return result
}

func renderWarnings(warnings []core.Warning) []string {
	var result = []string{}
	for _, w := range warnings {
		result = append(result, w.String())
	}
	return result
}

// transitionResponse is the body of every mutating call: the full
// post-transition unit, plus warnings for degraded side effects.
type transitionResponse struct {
	Unit     unitJSON `json:"unit"`
	Warnings []string `json:"warnings"`
}

type revisionJSON struct {
	Version    int               `json:"version"`
	Content    map[string]string `json:"content"`
	TsCreated  int64             `json:"tsCreated"`
	ApprovedBy int               `json:"approvedBy"`
}

func renderRevisions(revisions []core.DBRevision) []revisionJSON {
	var result = make([]revisionJSON, len(revisions))
	for i, r := range revisions {
		var content = map[string]string{}
		for lang, text := range r.Content() {
			content[string(lang)] = text
		}
		result[i] = revisionJSON{
			Version:    r.Version(),
			Content:    content,
			TsCreated:  r.TsCreated(),
			ApprovedBy: r.ApprovedBy(),
		}
	}
	return result
}

type auditJSON struct {
	Action         string `json:"action"`
	EntityKey      string `json:"entityKey"`
	PerformedBy    int    `json:"performedBy"`
	Timestamp      int64  `json:"timestamp"`
	Notes          string `json:"notes,omitempty"`
	VersionAtEvent int    `json:"versionAtEvent"`
}

func renderAudit(entries []core.DBAuditEntry) []auditJSON {
	var result = make([]auditJSON, len(entries))
	for i, e := range entries {
		result[i] = auditJSON{
			Action:         string(e.Action()),
			EntityKey:      e.EntityKey(),
			PerformedBy:    e.PerformedBy(),
			Timestamp:      e.Timestamp(),
			Notes:          e.Notes(),
			VersionAtEvent: e.VersionAtEvent(),
		}
	}
	return result
}
