package httpadapter

import (
	"net/http"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
	"github.com/MiscMich/villabot-sub004/internal/infrastructure/breaker"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound), domain.IsKind(err, domain.ErrWorkspaceNotFound):
		return http.StatusNotFound
	case breaker.IsOpen(err), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
