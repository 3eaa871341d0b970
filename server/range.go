package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aep/cursorkv/api"
	"github.com/aep/cursorkv/level"
	"github.com/aep/cursorkv/rql"
	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
)

const MAX_RESULTS = 10000

type rangeParams struct {
	Gt, Gte, Lt, Lte *string
	Limit            *int
	NoBuffer         *bool
}

// rangeQuery reads either q=<rql> or the individual gt, gte, lt, lte, limit
// and nobuffer parameters.
func rangeQuery(c echo.Context) (*rql.Query, error) {
	if q := c.QueryParam("q"); q != "" {
		query, err := rql.Parse(q)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return query, nil
	}

	var p rangeParams
	params := c.QueryParams()
	for name, dest := range map[string]any{
		"gt":       &p.Gt,
		"gte":      &p.Gte,
		"lt":       &p.Lt,
		"lte":      &p.Lte,
		"limit":    &p.Limit,
		"nobuffer": &p.NoBuffer,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, params, dest); err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	q := &rql.Query{Gt: p.Gt, Gte: p.Gte, Lt: p.Lt, Lte: p.Lte}
	if p.Limit != nil {
		q.Limit = *p.Limit
	}
	if p.NoBuffer != nil {
		q.NoBuffer = *p.NoBuffer
	}
	return q, nil
}

// handleRange streams the entries as json lines. Errors after the first line
// are sent as a line with only the error set.
func (s *server) handleRange(c echo.Context) error {
	q, err := rangeQuery(c)
	if err != nil {
		return err
	}
	if q.Limit <= 0 || q.Limit > MAX_RESULTS {
		q.Limit = MAX_RESULTS
	}

	ctx := c.Request().Context()
	it := s.store.Iterator(ctx, q.IteratorOptions())
	defer it.End(ctx)

	first, err := it.Next(ctx)
	if err != nil && !errors.Is(err, level.ErrEnd) {
		return httpError(err)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if errors.Is(err, level.ErrEnd) {
		return nil
	}

	enc := json.NewEncoder(w)
	write := func(e level.Entry) error {
		line := api.RangeEntry{Key: e.Key.String()}
		if q.NoBuffer || q.Raw {
			line.Value = renderValue(e.Value)
		} else {
			line.Value = e.Value.String()
		}
		if err := enc.Encode(&line); err != nil {
			return err
		}
		w.Flush()
		return nil
	}

	if err := write(first); err != nil {
		return nil
	}
	for e, err := range it.All(ctx) {
		if err != nil {
			log.Warn("[server].Range:", "query", q.String(), "err", err)
			enc.Encode(&api.RangeEntry{Error: err.Error()})
			return nil
		}
		if err := write(e); err != nil {
			return nil
		}
	}
	return nil
}
