package rpc

import (
	"errors"
	"net/http"

	"github.com/mhismail3/tron-sub003/internal/store"
)

// writeStoreError classifies a store error into one of spec.md §6's
// closed error codes and writes the response. op names the failing
// operation only for the MESSAGE_DELETE_FAILED special case, where the
// spec code itself is delete-specific rather than generic.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, store.ErrCannotDelete):
		if op == "deleteMessage" {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeMessageDeleteFailed, err.Error())
		} else {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeInvalidOperation, err.Error())
		}
	case errors.Is(err, store.ErrConstraintViolation):
		writeError(w, http.StatusConflict, ErrCodeInvalidOperation, err.Error())
	case errors.Is(err, store.ErrAmbiguousPrefix):
		writeError(w, http.StatusConflict, ErrCodeInvalidParams, err.Error())
	case errors.Is(err, store.ErrStorageCorrupt), errors.Is(err, store.ErrStorageFull), errors.Is(err, store.ErrStorageInit):
		writeError(w, http.StatusInternalServerError, ErrCodeStorageError, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeStorageError, err.Error())
	}
}
