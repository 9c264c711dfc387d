package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"contesthub/internal/domain"
	"contesthub/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func healthz(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthzResponse{
			Status:        "ok",
			UptimeSeconds: time.Since(d.StartTime).Seconds(),
		})
	}
}

func status(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Status == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "scraping disabled"})
			return
		}
		report, ok := d.Status.LastReport()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no scrape cycle has completed yet"})
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func failedJobs(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Jobs == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "queue disabled"})
			return
		}
		jobs, err := d.Jobs.Failed(r.Context(), d.JobName)
		if err != nil {
			d.Logger.WithError(err).Error("Failed to list failed jobs")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list jobs"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "total": len(jobs)})
	}
}

// listContests serves GET /contests?platform=&after=&before=&page=&limit=
// with after/before in RFC3339.
func listContests(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseContestFilter(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		page, err := d.Contests.ListContests(r.Context(), filter)
		if err != nil {
			d.Logger.WithError(err).Error("Failed to list contests")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to list contests"})
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

type badParam struct {
	name, value string
}

func (e badParam) Error() string {
	return "invalid " + e.name + " " + strconv.Quote(e.value)
}

func parseContestFilter(r *http.Request) (storage.ContestFilter, error) {
	q := r.URL.Query()
	var f storage.ContestFilter

	if v := q.Get("platform"); v != "" {
		p, ok := domain.ParsePlatform(v)
		if !ok {
			return f, badParam{"platform", v}
		}
		f.Platform = p
	}
	for _, tp := range []struct {
		name string
		dst  *time.Time
	}{{"after", &f.StartAfter}, {"before", &f.StartBefore}} {
		if v := q.Get(tp.name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, badParam{tp.name, v}
			}
			*tp.dst = t
		}
	}
	for _, ip := range []struct {
		name string
		dst  *int
	}{{"page", &f.Page}, {"limit", &f.Limit}} {
		if v := q.Get(ip.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return f, badParam{ip.name, v}
			}
			*ip.dst = n
		}
	}
	return f, nil
}
