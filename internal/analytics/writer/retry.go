package writer

import (
	"errors"
	"net/http"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var retryableHTTP = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var retryableGRPC = map[codes.Code]bool{
	codes.Aborted:           true,
	codes.DeadlineExceeded:  true,
	codes.Internal:          true,
	codes.ResourceExhausted: true,
	codes.Unavailable:       true,
}

// Retryable reports whether an insert error is transient. Aggregate errors
// are retryable only when every member is, since a retry resends every row.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return all([]error(multi), Retryable)
	}
	var put cbigquery.PutMultiError
	if errors.As(err, &put) {
		return all([]cbigquery.RowInsertionError(put), func(row cbigquery.RowInsertionError) bool { return Retryable(row.Errors) })
	}
	var row *cbigquery.RowInsertionError
	if errors.As(err, &row) && row != nil {
		return all([]error(row.Errors), Retryable)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return retryableHTTP[apiErr.Code]
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return retryableGRPC[st.Code()]
	}
	return false
}

// all is false for an empty slice.
func all[T any](items []T, pred func(T) bool) bool {
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !pred(item) {
			return false
		}
	}
	return true
}
