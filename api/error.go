package api

import (
	"fmt"
	"net/http"
)

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func IsNotFound(e error) bool {
	ee, ok := e.(Error)
	if !ok {
		return false
	}
	return ee.Code == http.StatusNotFound
}
