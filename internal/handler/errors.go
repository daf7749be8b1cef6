package handler

import (
	"errors"
	"net/http"

	"enotebook-sync/internal/remote"
	"enotebook-sync/internal/service"
	"enotebook-sync/pkg/response"
)

// writeError maps engine and remote errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var failure *remote.Failure
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		response.BadRequest(w, err.Error())
	case errors.Is(err, service.ErrNoteNotFound), errors.Is(err, service.ErrSubNoteNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, service.ErrOffline):
		response.ServiceUnavailable(w, err.Error())
	case errors.As(err, &failure) && failure.Kind == remote.KindRejection:
		status := failure.StatusCode()
		if status < 400 || status > 499 {
			status = http.StatusBadGateway
		}
		response.Error(w, status, err.Error())
	case errors.As(err, &failure):
		response.Error(w, http.StatusBadGateway, err.Error())
	default:
		response.InternalError(w, err.Error())
	}
}
