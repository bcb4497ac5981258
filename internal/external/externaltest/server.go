// Package externaltest provides an in-memory fake of the external todo
// system for tests.
package externaltest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Operation names accepted by FailWith.
const (
	OpFetch      = "fetch"
	OpCreateList = "create_list"
	OpUpdateList = "update_list"
	OpDeleteList = "delete_list"
	OpCreateItem = "create_item"
	OpUpdateItem = "update_item"
	OpDeleteItem = "delete_item"
)

// Item is an item held by the fake.
type Item struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	IsFinished  bool   `json:"isFinished"`
}

// List is a list held by the fake.
type List struct {
	ID    string
	Name  string
	Items []Item
}

// Request records a call received by the fake.
type Request struct {
	Method string
	Path   string
	Body   map[string]any
}

// Server is an httptest server speaking the external wire contract.
//
// Lists are served with their items under ItemsField, "todoItems" by default.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	lists      []*List
	nextID     int
	fail       map[string]int
	requests   []Request
	itemsField string
}

// NewServer starts a fake external system. It is closed on test cleanup
// when tb is non-nil.
func NewServer(tb interface{ Cleanup(func()) }) *Server {
	s := &Server{
		fail:       make(map[string]int),
		itemsField: "todoItems",
	}

	r := chi.NewRouter()
	r.Get("/todolists", s.handleFetch)
	r.Post("/todolists", s.handleCreateList)
	r.Patch("/todolists/{listID}", s.handleUpdateList)
	r.Delete("/todolists/{listID}", s.handleDeleteList)
	r.Post("/todolists/{listID}/todoitems", s.handleCreateItem)
	r.Patch("/todolists/{listID}/todoitems/{itemID}", s.handleUpdateItem)
	r.Delete("/todolists/{listID}/todoitems/{itemID}", s.handleDeleteItem)

	s.Server = httptest.NewServer(r)
	s.Server.Config.SetKeepAlivesEnabled(false)
	if tb != nil {
		tb.Cleanup(s.Close)
	}
	return s
}

// SetItemsField changes the key under which items are served.
func (s *Server) SetItemsField(field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.itemsField = field
}

// FailWith makes op answer with status until cleared with status 0.
func (s *Server) FailWith(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.fail, op)
		return
	}
	s.fail[op] = status
}

// PutList adds or replaces a list.
func (s *Server) PutList(id, name string, items ...Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l := s.findList(id); l != nil {
		l.Name = name
		l.Items = append([]Item(nil), items...)
		return
	}
	s.lists = append(s.lists, &List{ID: id, Name: name, Items: append([]Item(nil), items...)})
}

// RemoveList deletes a list directly.
func (s *Server) RemoveList(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range s.lists {
		if l.ID == id {
			s.lists = append(s.lists[:i], s.lists[i+1:]...)
			return
		}
	}
}

// List returns a copy of a list, or false if it does not exist.
func (s *Server) List(id string) (List, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findList(id)
	if l == nil {
		return List{}, false
	}
	return List{ID: l.ID, Name: l.Name, Items: append([]Item(nil), l.Items...)}, true
}

// Requests returns the calls received so far, excluding snapshot fetches.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) findList(id string) *List {
	for _, l := range s.lists {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (s *Server) genID() string {
	s.nextID++
	return fmt.Sprintf("gen-%d", s.nextID)
}

// begin records the request and reports whether a failure was injected.
func (s *Server) begin(w http.ResponseWriter, r *http.Request, op string) (map[string]any, bool) {
	var body map[string]any
	if r.Body != nil && r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if op != OpFetch {
		s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})
	}
	if status, ok := s.fail[op]; ok {
		writeJSON(w, status, map[string]string{"error": "injected failure"})
		return nil, false
	}
	return body, true
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.begin(w, r, OpFetch); !ok {
		return
	}

	out := make([]map[string]any, 0, len(s.lists))
	for _, l := range s.lists {
		items := append([]Item{}, l.Items...)
		out = append(out, map[string]any{"id": l.ID, "name": l.Name, s.itemsField: items})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.begin(w, r, OpCreateList)
	if !ok {
		return
	}

	name, _ := body["name"].(string)
	l := &List{ID: s.genID(), Name: name}
	s.lists = append(s.lists, l)
	writeJSON(w, http.StatusCreated, map[string]any{"id": l.ID, "name": l.Name, "todoItems": []Item{}})
}

func (s *Server) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.begin(w, r, OpUpdateList)
	if !ok {
		return
	}

	l := s.findList(chi.URLParam(r, "listID"))
	if l == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	if name, ok := body["name"].(string); ok && name != "" {
		l.Name = name
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": l.ID, "name": l.Name})
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.begin(w, r, OpDeleteList); !ok {
		return
	}

	id := chi.URLParam(r, "listID")
	for i, l := range s.lists {
		if l.ID == id {
			s.lists = append(s.lists[:i], s.lists[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.begin(w, r, OpCreateItem)
	if !ok {
		return
	}

	l := s.findList(chi.URLParam(r, "listID"))
	if l == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "List not found"})
		return
	}
	desc, _ := body["description"].(string)
	done, _ := body["isFinished"].(bool)
	item := Item{ID: s.genID(), Description: desc, IsFinished: done}
	l.Items = append(l.Items, item)
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.begin(w, r, OpUpdateItem)
	if !ok {
		return
	}

	l := s.findList(chi.URLParam(r, "listID"))
	if l == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "List not found"})
		return
	}
	itemID := chi.URLParam(r, "itemID")
	for i := range l.Items {
		if l.Items[i].ID != itemID {
			continue
		}
		if desc, ok := body["description"].(string); ok {
			l.Items[i].Description = desc
		}
		if done, ok := body["isFinished"].(bool); ok {
			l.Items[i].IsFinished = done
		}
		writeJSON(w, http.StatusOK, l.Items[i])
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Item not found"})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.begin(w, r, OpDeleteItem); !ok {
		return
	}

	l := s.findList(chi.URLParam(r, "listID"))
	if l == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "List not found"})
		return
	}
	itemID := chi.URLParam(r, "itemID")
	for i := range l.Items {
		if l.Items[i].ID == itemID {
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Item not found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
