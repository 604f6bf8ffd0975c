package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Series      *SeriesHandler
	Occurrences *OccurrenceHandler
	Middleware  []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Occurrences != nil {
		mux.HandleFunc("/occurrences", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Occurrences.List(w, r)
		})
		mux.HandleFunc("/occurrences.ics", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Occurrences.Feed(w, r)
		})
	}

	if cfg.Series != nil {
		mux.HandleFunc("/series", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Series.List(w, r)
			case http.MethodPost:
				cfg.Series.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/series/", func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/series/")
			if rest == "" {
				http.NotFound(w, r)
				return
			}

			id, action, _ := strings.Cut(rest, "/")
			if id == "" || strings.Contains(action, "/") {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithSeriesID(r.Context(), id))

			switch action {
			case "":
				switch r.Method {
				case http.MethodGet:
					cfg.Series.Get(w, r)
				case http.MethodPut:
					cfg.Series.Update(w, r)
				case http.MethodDelete:
					cfg.Series.Delete(w, r)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
				}
			case "occurrence":
				if cfg.Occurrences == nil {
					http.NotFound(w, r)
					return
				}
				switch r.Method {
				case http.MethodPost:
					cfg.Occurrences.UpsertException(w, r)
				case http.MethodDelete:
					cfg.Occurrences.DeleteOccurrence(w, r)
				default:
					methodNotAllowed(w, http.MethodPost, http.MethodDelete)
				}
			case "split":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cfg.Series.Split(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
