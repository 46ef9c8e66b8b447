package web

import (
	"fmt"
	"net/http"

	"github.com/JonMunkholm/RosterImport/internal/core"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// EntityResponse describes one importable entity type.
type EntityResponse struct {
	Type         core.EntityType   `json:"type"`
	DisplayName  string            `json:"displayName"`
	IDPrefix     string            `json:"idPrefix"`
	SheetName    string            `json:"sheetName"`
	Dependencies []core.EntityType `json:"dependencies"`
	Fields       []core.FieldSpec  `json:"fields"`
}

// handleListEntities lists the catalog in commit order.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	defs := s.service.Entities()
	out := make([]EntityResponse, 0, len(defs))
	for _, def := range defs {
		deps := def.Dependencies()
		if deps == nil {
			deps = []core.EntityType{}
		}
		out = append(out, EntityResponse{
			Type:         def.Type,
			DisplayName:  def.DisplayName,
			IDPrefix:     def.IDPrefix,
			SheetName:    def.DisplayName,
			Dependencies: deps,
			Fields:       def.Fields,
		})
	}
	writeJSON(w, out)
}

// handleDownloadTemplate returns an .xlsx template for one entity type, or
// for every entity type when entityType is omitted.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	data, name, err := s.service.Template(r.URL.Query().Get("entityType"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Write(data)
}

// handleImportStatus reports upload and commit slot usage.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.LimiterStatus())
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
