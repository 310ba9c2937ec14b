// Package devstore is an in-memory stand-in for the hosted tabular store.
// It speaks the same REST dialect the gateway emits (equality filters,
// select projection, order, limit) and backs integration tests and local
// development. Not safe for anything beyond that.
package devstore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Server holds the tables and serves the REST surface.
type Server struct {
	apiKey string
	log    zerolog.Logger

	mu     sync.RWMutex
	tables map[string][]map[string]any
	faults map[string]int // "METHOD collection" -> forced status
	calls  map[string]int
}

func New(apiKey string, log zerolog.Logger) *Server {
	return &Server{
		apiKey: apiKey,
		log:    log,
		tables: map[string][]map[string]any{},
		faults: map[string]int{},
		calls:  map[string]int{},
	}
}

// Router builds the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/rest/v1/{collection}", func(r chi.Router) {
		r.Get("/", s.handleSelect)
		r.Post("/", s.handleInsert)
		r.Patch("/", s.handlePatch)
		r.Delete("/", s.handleDelete)
	})
	return r
}

// Seed inserts rows directly, assigning ids and timestamps like a real insert.
func (s *Server) Seed(collection string, rows ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.tables[collection] = append(s.tables[collection], s.stamp(row))
	}
}

// Rows returns a copy of the current table contents.
func (s *Server) Rows(collection string) []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]any, len(s.tables[collection]))
	copy(out, s.tables[collection])
	return out
}

// Fail forces the given status on every subsequent METHOD request to the
// collection until ClearFaults is called.
func (s *Server) Fail(method, collection string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+collection] = status
}

// ClearFaults removes all armed faults.
func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = map[string]int{}
}

// Calls reports how many METHOD requests reached the collection.
func (s *Server) Calls(method, collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[method+" "+collection]
}

func (s *Server) gate(w http.ResponseWriter, r *http.Request) (string, bool) {
	collection := chi.URLParam(r, "collection")
	key := r.Method + " " + collection

	s.mu.Lock()
	s.calls[key]++
	fault := s.faults[key]
	s.mu.Unlock()

	if r.Header.Get("apikey") != s.apiKey {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
		return "", false
	}
	if fault != 0 {
		http.Error(w, `{"message":"forced failure"}`, fault)
		return "", false
	}
	return collection, true
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.gate(w, r)
	if !ok {
		return
	}
	params := r.URL.Query()

	s.mu.RLock()
	rows := filterRows(s.tables[collection], params)
	s.mu.RUnlock()

	if order := params.Get("order"); order != "" {
		sortRows(rows, order)
	}
	if limit := params.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n >= 0 && n < len(rows) {
			rows = rows[:n]
		}
	}
	if sel := params.Get("select"); sel != "" && sel != "*" {
		rows = s.project(rows, sel)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		s.log.Error().Err(err).Msg("encode select response")
	}
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.gate(w, r)
	if !ok {
		return
	}

	var payload any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, `{"message":"invalid body"}`, http.StatusBadRequest)
		return
	}

	var rows []map[string]any
	switch v := payload.(type) {
	case map[string]any:
		rows = []map[string]any{v}
	case []any:
		for _, item := range v {
			row, ok := item.(map[string]any)
			if !ok {
				http.Error(w, `{"message":"invalid row"}`, http.StatusBadRequest)
				return
			}
			rows = append(rows, row)
		}
	default:
		http.Error(w, `{"message":"invalid body"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	for _, row := range rows {
		s.tables[collection] = append(s.tables[collection], s.stamp(row))
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.gate(w, r)
	if !ok {
		return
	}

	var changes map[string]any
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		http.Error(w, `{"message":"invalid body"}`, http.StatusBadRequest)
		return
	}
	params := r.URL.Query()

	s.mu.Lock()
	for _, row := range s.tables[collection] {
		if matches(row, params) {
			for k, v := range changes {
				row[k] = v
			}
		}
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection, ok := s.gate(w, r)
	if !ok {
		return
	}
	params := r.URL.Query()

	s.mu.Lock()
	kept := s.tables[collection][:0]
	for _, row := range s.tables[collection] {
		if !matches(row, params) {
			kept = append(kept, row)
		}
	}
	s.tables[collection] = kept
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// stamp assigns the server-side columns of a fresh row.
func (s *Server) stamp(row map[string]any) map[string]any {
	out := make(map[string]any, len(row)+2)
	for k, v := range row {
		out[k] = v
	}
	if _, ok := out["id"]; !ok {
		out["id"] = uuid.NewString()
	}
	if _, ok := out["created_at"]; !ok {
		// fixed-width fraction keeps timestamps lexicographically sortable
		out["created_at"] = time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
	}
	return out
}

// project keeps only the selected columns. An entry shaped "table(*)" embeds
// the rows of that table whose <singular>_id matches this row's id, which is
// how the hosted store resolves nested selects.
func (s *Server) project(rows []map[string]any, sel string) []map[string]any {
	cols := strings.Split(sel, ",")
	out := make([]map[string]any, 0, len(rows))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, row := range rows {
		projected := map[string]any{}
		for _, col := range cols {
			col = strings.TrimSpace(col)
			switch {
			case col == "*":
				for k, v := range row {
					projected[k] = v
				}
			case strings.HasSuffix(col, "(*)"):
				table := strings.TrimSuffix(col, "(*)")
				projected[table] = embedRows(s.tables[table], row["id"])
			default:
				if v, ok := row[col]; ok {
					projected[col] = v
				}
			}
		}
		out = append(out, projected)
	}
	return out
}

func embedRows(child []map[string]any, parentID any) []map[string]any {
	out := []map[string]any{}
	for _, row := range child {
		if row["order_id"] == parentID {
			out = append(out, row)
		}
	}
	return out
}

func filterRows(rows []map[string]any, params map[string][]string) []map[string]any {
	out := []map[string]any{}
	for _, row := range rows {
		if matches(row, params) {
			out = append(out, row)
		}
	}
	return out
}

var reserved = map[string]struct{}{
	"select": {}, "order": {}, "limit": {},
}

// matches applies every field=eq.value predicate in the query string.
func matches(row map[string]any, params map[string][]string) bool {
	for field, values := range params {
		if _, skip := reserved[field]; skip {
			continue
		}
		if len(values) == 0 || !strings.HasPrefix(values[0], "eq.") {
			continue
		}
		want := strings.TrimPrefix(values[0], "eq.")
		if fmt.Sprint(row[field]) != want {
			return false
		}
	}
	return true
}

// sortRows orders rows by "field.asc" / "field.desc".
func sortRows(rows []map[string]any, order string) {
	field := order
	desc := false
	if i := strings.LastIndex(order, "."); i > 0 {
		field = order[:i]
		desc = order[i+1:] == "desc"
	}

	sort.SliceStable(rows, func(i, j int) bool {
		less := lessValues(rows[i][field], rows[j][field])
		if desc {
			return lessValues(rows[j][field], rows[i][field])
		}
		return less
	})
}

func lessValues(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
