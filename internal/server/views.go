package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/feedopt/feedopt/internal/utils"
	"github.com/feedopt/feedopt/pkg/formulation"
	"github.com/feedopt/feedopt/pkg/report"
)

// view is one client's working state: its constraint list and its manual
// draft. All access goes through mu.
type view struct {
	mu     sync.Mutex
	remote formulation.Vocabulary
	store  *formulation.Store
	draft  formulation.Draft
}

type viewHandler func(w http.ResponseWriter, r *http.Request, v *view)

func (s *Server) withView(h viewHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		v, ok := s.views[r.PathValue("id")]
		s.mu.Unlock()
		if !ok {
			http.Error(w, "view not found", http.StatusNotFound)
			return
		}
		h(w, r, v)
	}
}

type viewResponse struct {
	ID         string                 `json:"id"`
	Vocabulary formulation.Vocabulary `json:"vocabulary"`
}

func (s *Server) handleCreateView(w http.ResponseWriter, r *http.Request) {
	vocab, err := s.Gateway.FetchCatalog(r.Context())
	if err != nil {
		gatewayError(w, err)
		return
	}
	s.refreshMaterials(r.Context())
	merged := vocab
	if s.Materials != nil {
		merged = s.Materials.Merge(vocab)
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.views[id] = &view{
		remote: vocab,
		store:  formulation.NewStore(merged),
		draft:  formulation.NewDraft(vocab.Materials),
	}
	s.mu.Unlock()
	utils.Log.WithFields(logrus.Fields{"view": id, "materials": len(vocab.Materials), "nutrients": len(vocab.Nutrients)}).Debug("view created")
	writeJSON(w, http.StatusCreated, viewResponse{ID: id, Vocabulary: merged})
}

func (s *Server) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.views, r.PathValue("id"))
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListConstraints(w http.ResponseWriter, r *http.Request, v *view) {
	v.mu.Lock()
	entries := v.store.Entries()
	v.mu.Unlock()
	writeJSON(w, http.StatusOK, entries)
}

type addConstraintRequest struct {
	Kind     string   `json:"kind"`
	Subject  *string  `json:"subject"`
	Relation *string  `json:"relation"`
	Value    *float64 `json:"value"`
}

type fieldEdit struct {
	field formulation.Field
	raw   *string
}

func (s *Server) handleAddConstraint(w http.ResponseWriter, r *http.Request, v *view) {
	var req addConstraintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := formulation.ParseKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	e := v.store.Add(kind)
	edits := []fieldEdit{
		{formulation.FieldSubject, req.Subject},
		{formulation.FieldRelation, req.Relation},
	}
	if req.Value != nil {
		raw := strconv.FormatFloat(*req.Value, 'f', -1, 64)
		edits = append(edits, fieldEdit{formulation.FieldValue, &raw})
	}
	for _, ed := range edits {
		if ed.raw == nil {
			continue
		}
		if err := v.store.Update(e.ID, ed.field, *ed.raw); err != nil {
			v.store.Remove(e.ID)
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
	}
	e, _ = v.store.Get(e.ID)
	writeJSON(w, http.StatusCreated, e)
}

type updateConstraintRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (s *Server) handleUpdateConstraint(w http.ResponseWriter, r *http.Request, v *view) {
	id, err := strconv.ParseUint(r.PathValue("cid"), 10, 64)
	if err != nil {
		http.Error(w, "invalid constraint id", http.StatusBadRequest)
		return
	}
	var req updateConstraintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	field, err := formulation.ParseField(req.Field)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.store.Update(formulation.EntryID(id), field, req.Value); err != nil {
		var verr *formulation.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	e, ok := v.store.Get(formulation.EntryID(id))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleRemoveConstraint(w http.ResponseWriter, r *http.Request, v *view) {
	id, err := strconv.ParseUint(r.PathValue("cid"), 10, 64)
	if err != nil {
		http.Error(w, "invalid constraint id", http.StatusBadRequest)
		return
	}
	v.mu.Lock()
	v.store.Remove(formulation.EntryID(id))
	v.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

type optimizeRequest struct {
	CostCeiling *float64 `json:"cost_ceiling"`
}

type reportResponse struct {
	Message string             `json:"message"`
	Report  formulation.Report `json:"report"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request, v *view) {
	var req optimizeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	ceiling := s.DefaultCostCeiling
	if req.CostCeiling != nil {
		ceiling = *req.CostCeiling
	}

	// Snapshot under the lock; the service call runs without it.
	v.mu.Lock()
	entries := v.store.Entries()
	remote := v.remote
	v.mu.Unlock()

	s.refreshMaterials(r.Context())
	var extras map[string]formulation.ExtraMaterial
	if s.Materials != nil {
		extras = s.Materials.Extras(remote)
	}
	compiled := formulation.Compile(entries, ceiling, extras)

	opt, err := s.Gateway.SubmitOptimization(r.Context(), compiled)
	if err != nil {
		gatewayError(w, err)
		return
	}
	if s.Results != nil {
		if err := s.Results.SaveLastResult(r.Context(), opt.Raw); err != nil {
			utils.Log.WithError(err).Error("could not persist optimization result")
		}
	}
	rep := formulation.Normalize(opt.Result)
	writeJSON(w, http.StatusOK, reportResponse{Message: report.StatusLine(rep), Report: rep})
}

type draftResponse struct {
	Draft     formulation.Draft `json:"draft"`
	Total     float64           `json:"total"`
	Remaining float64           `json:"remaining"`
}

func newDraftResponse(d formulation.Draft) draftResponse {
	return draftResponse{Draft: d, Total: formulation.Round(d.Total()), Remaining: formulation.Round(d.Remaining())}
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request, v *view) {
	v.mu.Lock()
	d := v.draft.Clone()
	v.mu.Unlock()
	writeJSON(w, http.StatusOK, newDraftResponse(d))
}

type setDraftRequest struct {
	Value float64 `json:"value"`
}

func (s *Server) handleSetDraft(w http.ResponseWriter, r *http.Request, v *view) {
	var req setDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	material := r.PathValue("material")

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.draft[material]; !ok {
		http.Error(w, "unknown raw material "+strconv.Quote(material), http.StatusNotFound)
		return
	}
	next, err := formulation.ProposeUpdate(v.draft, material, req.Value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	v.draft = next
	writeJSON(w, http.StatusOK, newDraftResponse(next.Clone()))
}

func (s *Server) handleConsult(w http.ResponseWriter, r *http.Request, v *view) {
	v.mu.Lock()
	d := v.draft.Clone()
	v.mu.Unlock()

	cons, err := s.Gateway.SubmitConsultation(r.Context(), d)
	if err != nil {
		gatewayError(w, err)
		return
	}
	rep := formulation.NormalizeConsultation(cons, d)
	writeJSON(w, http.StatusOK, reportResponse{Message: report.StatusLine(rep), Report: rep})
}
