package server

import (
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aep/cursorkv/api"
	"github.com/aep/cursorkv/level"
	"github.com/labstack/echo/v4"
)

func keyParam(c echo.Context) ([]byte, error) {
	k, err := url.PathUnescape(c.Param("*"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if k == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, level.ErrInvalidKey.Error())
	}
	return []byte(k), nil
}

func (s *server) handleGet(c echo.Context) error {
	key, err := keyParam(c)
	if err != nil {
		return err
	}
	nobuffer := c.QueryParam("nobuffer") == "true"

	if !nobuffer && s.cache != nil {
		if v, ok := s.cache.Get(string(key)); ok {
			cacheHits.Inc()
			return c.Blob(http.StatusOK, echo.MIMEOctetStream, v.Bytes())
		}
	}

	start := time.Now()
	v, err := s.store.Get(c.Request().Context(), key, &level.Options{NoBuffer: nobuffer})
	observe("get", start, err)
	if err != nil {
		return httpError(err)
	}

	if nobuffer {
		return c.JSON(http.StatusOK, renderValue(v))
	}
	if s.cache != nil {
		s.cache.Set(string(key), v)
	}
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, v.Bytes())
}

func (s *server) handlePut(c echo.Context) error {
	key, err := keyParam(c)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var value level.Value
	var o *level.Options
	if c.QueryParam("encoding") == level.Binary {
		value = level.Bytes(body)
		o = &level.Options{ValueEncoding: level.Binary}
	} else {
		value = level.Text(string(body))
	}

	start := time.Now()
	err = s.store.Put(c.Request().Context(), key, value, o)
	observe("put", start, err)
	s.invalidate(string(key))
	if err != nil {
		return httpError(err)
	}

	s.publish(api.OpPut, string(key))
	return c.NoContent(http.StatusNoContent)
}

func (s *server) handleDelete(c echo.Context) error {
	key, err := keyParam(c)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.store.Delete(c.Request().Context(), key, nil)
	observe("del", start, err)
	s.invalidate(string(key))
	if err != nil {
		return httpError(err)
	}

	s.publish(api.OpDel, string(key))
	return c.NoContent(http.StatusNoContent)
}

func (s *server) handleBatch(c echo.Context) error {
	var req api.BatchRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	ops, o, err := req.LevelOps()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	keys := make([]string, 0, len(ops))
	for _, op := range ops {
		keys = append(keys, string(op.Key))
	}

	start := time.Now()
	err = s.store.Batch(c.Request().Context(), ops, o)
	observe("batch", start, err)
	s.invalidate(keys...)
	if err != nil {
		return httpError(err)
	}

	if len(keys) > 0 {
		s.publish(api.OpBatch, keys...)
	}
	return c.JSON(http.StatusOK, api.BatchResponse{Written: len(ops)})
}

func (s *server) handleSize(c echo.Context) error {
	_, err := s.store.ApproximateSize(c.Request().Context(), []byte(c.QueryParam("start")), []byte(c.QueryParam("end")))
	return httpError(err)
}
