package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mschirtzinger/todosync/internal/db"
	"github.com/mschirtzinger/todosync/internal/queue"
	"github.com/mschirtzinger/todosync/internal/schema"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

type listRequest struct {
	Name *string `json:"name"`
}

// itemRequest accepts both "isFinished" and "done" for completion, with
// "isFinished" taking precedence.
type itemRequest struct {
	Description *string `json:"description"`
	IsFinished  *bool   `json:"isFinished"`
	Done        *bool   `json:"done"`
}

func (r itemRequest) patch() schema.ItemPatch {
	p := schema.ItemPatch{Description: r.Description, Done: r.Done}
	if r.IsFinished != nil {
		p.Done = r.IsFinished
	}
	return p
}

// listLists handles GET /api/todolists.
func (s *Server) listLists(w http.ResponseWriter, r *http.Request) {
	lists, err := s.service.Lists(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

// createList handles POST /api/todolists.
func (s *Server) createList(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == nil {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}
	candidate := schema.List{Name: *req.Name}
	if err := candidate.ValidateInput(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	list, err := s.service.CreateList(r.Context(), *req.Name)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, list)
}

// getList handles GET /api/todolists/{listID}.
func (s *Server) getList(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "listID")
	if !ok {
		return
	}
	list, err := s.service.GetList(r.Context(), listID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// updateList handles PUT and PATCH /api/todolists/{listID}.
func (s *Server) updateList(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "listID")
	if !ok {
		return
	}
	var req listRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name != nil {
		candidate := schema.List{Name: *req.Name}
		if err := candidate.ValidateInput(); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	list, err := s.service.UpdateList(r.Context(), listID, schema.ListPatch{Name: req.Name})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// deleteList handles DELETE /api/todolists/{listID}.
func (s *Server) deleteList(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "listID")
	if !ok {
		return
	}
	if err := s.service.DeleteList(r.Context(), listID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listItems handles GET /api/todolists/{listID}/items.
func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "listID")
	if !ok {
		return
	}
	items, err := s.service.Items(r.Context(), listID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// createItem handles POST /api/todolists/{listID}/items.
func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "listID")
	if !ok {
		return
	}
	var req itemRequest
	if !s.decode(w, r, &req) {
		return
	}

	p := req.patch()
	candidate := p.Apply(schema.Item{ListID: listID})
	if err := candidate.ValidateInput(); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := s.service.CreateItem(r.Context(), listID, candidate.Description, candidate.Done)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// getItem handles GET /api/todolists/{listID}/items/{itemID}.
func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "listID")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	item, err := s.service.GetItem(r.Context(), listID, itemID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// updateItem handles PATCH and PUT /api/todolists/{listID}/items/{itemID}.
//
// The update is queued and applied later; the response is 202 with the
// item as it was before the update.
func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "listID")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	var req itemRequest
	if !s.decode(w, r, &req) {
		return
	}

	p := req.patch()
	if p.IsEmpty() {
		writeError(w, "nothing to update", http.StatusBadRequest)
		return
	}
	if p.Description != nil {
		if err := schema.ValidateDescription(*p.Description); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	item, err := s.service.EnqueueItemUpdate(r.Context(), listID, itemID, p)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, item)
}

// deleteItem handles DELETE /api/todolists/{listID}/items/{itemID}.
func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	listID, ok := pathID(w, r, "listID")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	if err := s.service.DeleteItem(r.Context(), listID, itemID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, "request body is required", http.StatusBadRequest)
			return false
		}
		writeError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, "not found", http.StatusNotFound)
	case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
		writeError(w, "update queue unavailable", http.StatusServiceUnavailable)
	default:
		s.logger.Errorf("Request failed: %v", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, fmt.Sprintf("invalid %s %q", param, raw), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
