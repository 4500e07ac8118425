package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type errorMapping struct {
	target  error
	status  int
	code    codes.Code
	message string
}

var errorMappings = []errorMapping{
	{domain.ErrInvalidInput, http.StatusBadRequest, codes.InvalidArgument, "invalid input"},
	{domain.ErrInsufficientStock, http.StatusConflict, codes.FailedPrecondition, "insufficient stock"},
	{domain.ErrItemNotFound, http.StatusNotFound, codes.NotFound, "item not found"},
	{domain.ErrDuplicateRequest, http.StatusConflict, codes.AlreadyExists, "duplicate request"},
	{domain.ErrItemExists, http.StatusConflict, codes.AlreadyExists, "item already exists"},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, codes.Unavailable, "store unavailable"},
}

func mapError(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m
		}
	}
	return errorMapping{status: http.StatusInternalServerError, code: codes.Internal, message: "internal error"}
}
