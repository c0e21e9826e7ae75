package persistence

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HistoryParams legge minutes e limit dalla query string, con limiti.
func HistoryParams(r *http.Request) (minutes, limit int) {
	q := r.URL.Query()
	get := func(k string, def, min, max int) int {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < min {
					return min
				}
				if n > max {
					return max
				}
				return n
			}
		}
		return def
	}
	return get("minutes", 60, 1, 7*24*60), get("limit", 100, 1, 1000)
}

func NewHTTPMux(svc *Service) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	// GET /data/history?entity=<id>[&minutes=60][&limit=100]
	mux.HandleFunc("/data/history", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.URL.Query().Get("entity"))
		if id == "" {
			http.Error(w, "missing entity", http.StatusBadRequest)
			return
		}
		minutes, limit := HistoryParams(r)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		list, err := svc.QueryHistory(ctx, id, minutes, limit)
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.Header().Set("X-Error", "influx-query-error")
		}
		if list == nil {
			list = []HistoryPoint{}
		}
		_ = json.NewEncoder(w).Encode(list)
	})

	return mux
}
