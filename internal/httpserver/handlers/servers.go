package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/vpsinv/internal/auth"
	"github.com/MrSnakeDoc/vpsinv/internal/domain"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/deps"
	"github.com/MrSnakeDoc/vpsinv/internal/httpserver/mw"
	"github.com/MrSnakeDoc/vpsinv/internal/sources/seed"
)

func ListServers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeError(w, r, d, auth.ErrInvalidToken)
			return
		}

		params := r.URL.Query()
		sort, err := domain.ParseSort(params.Get("sort"))
		if err != nil {
			writeError(w, r, d, badRequest("%v", err))
			return
		}
		refresh, _ := strconv.ParseBool(params.Get("refresh"))

		view, err := d.Inventory.Query(r.Context(), user.ID, domain.Query{
			Provider: params.Get("provider"),
			Search:   params.Get("q"),
			Sort:     sort,
		}, refresh)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func CreateServer(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeError(w, r, d, auth.ErrInvalidToken)
			return
		}

		var in domain.InsertServer
		if err := decodeJSON(w, r, d, &in); err != nil {
			writeError(w, r, d, err)
			return
		}

		server, err := d.Inventory.Create(r.Context(), user.ID, in)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		setETag(w, server.Version)
		writeJSON(w, http.StatusCreated, server)
	}
}

// UpdateServer replaces a server. The expected version comes from the body,
// or from an If-Match header when the body carries none.
func UpdateServer(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeError(w, r, d, auth.ErrInvalidToken)
			return
		}

		var in domain.InsertServer
		if err := decodeJSON(w, r, d, &in); err != nil {
			writeError(w, r, d, err)
			return
		}
		if in.Version == 0 {
			v, err := ifMatchVersion(r.Header.Get("If-Match"))
			if err != nil {
				writeError(w, r, d, err)
				return
			}
			in.Version = v
		}

		server, err := d.Inventory.Update(r.Context(), user.ID, chi.URLParam(r, "id"), in)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		setETag(w, server.Version)
		writeJSON(w, http.StatusOK, server)
	}
}

func DeleteServer(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeError(w, r, d, auth.ErrInvalidToken)
			return
		}

		if err := d.Inventory.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
			writeError(w, r, d, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ExportServers downloads the caller's inventory as a seed file.
func ExportServers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeError(w, r, d, auth.ErrInvalidToken)
			return
		}

		servers, err := d.Inventory.Export(r.Context(), user.ID)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		data, err := seed.Marshal(servers)
		if err != nil {
			writeError(w, r, d, err)
			return
		}

		filename := fmt.Sprintf("vpsinv-%s.yaml", d.Now().UTC().Format("20060102"))
		w.Header().Set("Content-Type", "application/yaml")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// ImportServers upserts the servers of a YAML seed file, matched by name.
func ImportServers(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.UserFrom(r.Context())
		if !ok {
			writeError(w, r, d, auth.ErrInvalidToken)
			return
		}

		data, err := readBody(w, r, d)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		file, err := seed.Parse(data)
		if err != nil {
			writeError(w, r, d, badRequest("%v", err))
			return
		}
		items, err := seed.NewMapper().MapServers(file)
		if err != nil {
			writeError(w, r, d, badRequest("%v", err))
			return
		}

		res, err := d.Inventory.Import(r.Context(), user.ID, items)
		if err != nil {
			writeError(w, r, d, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func setETag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}

// ifMatchVersion parses an If-Match header holding one version, quoted or
// not. An empty header or "*" means no precondition.
func ifMatchVersion(h string) (int64, error) {
	h = strings.TrimSpace(h)
	if h == "" || h == "*" {
		return 0, nil
	}
	h = strings.TrimPrefix(h, "W/")
	v, err := strconv.ParseInt(strings.Trim(h, `"`), 10, 64)
	if err != nil || v < 1 {
		return 0, badRequest("invalid If-Match header %q", h)
	}
	return v, nil
}

func isAuthError(err error) bool {
	return errors.Is(err, auth.ErrInvalidToken)
}
