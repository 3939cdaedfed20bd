package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-assess/internal/assignment"
	"github.com/mind-engage/mindengage-assess/internal/content"
)

// POST /tests  body: content.TestDef
func ImportTestHandler(im *content.Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var def content.TestDef
		if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
			badRequest(w, "bad json")
			return
		}
		id, err := im.PutTest(r.Context(), def)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{"id": id})
	}
}

// POST /tests/{testID}/assignments {"assign": ["s1"], "unassign": ["s2"]}
func AssignTestHandler(store *assignment.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID, ok := pathID(r, "testID")
		if !ok {
			badRequest(w, "bad test id")
			return
		}
		var req struct {
			Assign   []string `json:"assign"`
			Unassign []string `json:"unassign"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		if err := store.Assign(r.Context(), testID, req.Assign...); err != nil {
			if errors.Is(err, assignment.ErrTestNotFound) {
				err = content.ErrNotFound
			}
			respondError(w, r, err)
			return
		}
		for _, sid := range req.Unassign {
			if err := store.Unassign(r.Context(), testID, sid); err != nil {
				respondError(w, r, err)
				return
			}
		}
		list, err := store.ForTest(r.Context(), testID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		if list == nil {
			list = []assignment.Assignment{}
		}
		respondJSON(w, http.StatusOK, list)
	}
}
