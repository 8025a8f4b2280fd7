package controllers

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/digital-fulfillment/pkg/errors"
)

func uuidFromString(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid productId")
	}
	return id, nil
}
