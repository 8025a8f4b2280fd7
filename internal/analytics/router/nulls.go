package router

import (
	"strings"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

func nullString(value string) cbigquery.NullString {
	trimmed := strings.TrimSpace(value)
	return cbigquery.NullString{StringVal: trimmed, Valid: trimmed != ""}
}

func nullUUID(value string) cbigquery.NullString {
	if value == uuid.Nil.String() {
		return cbigquery.NullString{}
	}
	return nullString(value)
}
