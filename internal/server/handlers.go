package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/feedopt/feedopt/pkg/catalog"
	"github.com/feedopt/feedopt/pkg/formulation"
	"github.com/feedopt/feedopt/pkg/report"
)

const maxUploadSize = 32 << 20

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	vocab, err := s.Gateway.FetchCatalog(r.Context())
	if err != nil {
		gatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vocab)
}

func (s *Server) handleCatalogImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	msg, err := s.Gateway.ImportCatalog(r.Context(), hdr.Filename, file, r.FormValue("session"))
	if err != nil {
		gatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleCatalogExport(w http.ResponseWriter, r *http.Request) {
	d, err := s.Gateway.ExportCatalog(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		gatewayError(w, err)
		return
	}
	if d.ContentType != "" {
		w.Header().Set("Content-Type", d.ContentType)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
	w.Write(d.Data)
}

type latestResponse struct {
	Result formulation.Result `json:"result"`
	Report formulation.Report `json:"report"`
}

// latest loads and normalizes the persisted result. It writes the error
// response itself and reports whether the caller may continue.
func (s *Server) latest(w http.ResponseWriter, r *http.Request) (formulation.Result, bool) {
	if s.Results == nil {
		http.Error(w, "no stored result", http.StatusNotFound)
		return formulation.Result{}, false
	}
	raw, ok, err := s.Results.LastResult(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return formulation.Result{}, false
	}
	if !ok {
		http.Error(w, "no stored result", http.StatusNotFound)
		return formulation.Result{}, false
	}
	res, err := formulation.ParseResult(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return formulation.Result{}, false
	}
	return res, true
}

func (s *Server) handleLatestResult(w http.ResponseWriter, r *http.Request) {
	res, ok := s.latest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, latestResponse{Result: res, Report: formulation.Normalize(res)})
}

func (s *Server) handleExportLatest(w http.ResponseWriter, r *http.Request) {
	format := report.FormatCSV
	if q := r.URL.Query().Get("format"); q != "" {
		var err error
		if format, err = report.ParseFormat(q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	res, ok := s.latest(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.Write(format, &buf, formulation.Normalize(res)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "formulation"+format.Extension()))
	w.Write(buf.Bytes())
}

func (s *Server) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	s.refreshMaterials(r.Context())
	writeJSON(w, http.StatusOK, s.Materials.List())
}

func (s *Server) handleAddMaterial(w http.ResponseWriter, r *http.Request) {
	var m catalog.RawMaterial
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Materials.Add(r.Context(), m); err != nil {
		if errors.Is(err, catalog.ErrNameRequired) || errors.Is(err, catalog.ErrInvalidCost) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, s.Materials.List())
}

func (s *Server) handleRemoveMaterial(w http.ResponseWriter, r *http.Request) {
	if err := s.Materials.Remove(r.Context(), r.PathValue("name")); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
