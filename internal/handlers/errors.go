package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/WencesJ/Speer-Tweeter/internal/database"
	"github.com/WencesJ/Speer-Tweeter/internal/middleware"
	"github.com/WencesJ/Speer-Tweeter/internal/models"
	"github.com/WencesJ/Speer-Tweeter/internal/services"
	"github.com/WencesJ/Speer-Tweeter/pkg/query"
	"github.com/WencesJ/Speer-Tweeter/pkg/utils"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// validate is shared by all handlers; it caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// CodeValidation tags request bodies rejected by validation.
const CodeValidation = "VALIDATION_ERROR"

// decodeJSON reads r's body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &services.InputError{Message: "request body is empty"}
		}
		return &services.InputError{Message: fmt.Sprintf("invalid JSON body: %v", err)}
	}

	if err := validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

// respondError renders err with the status its type maps to. Server-side
// failures are logged and answered with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := services.IsAuthError(err); ok {
		utils.RespondWithErrorCode(w, r, http.StatusUnauthorized, string(ae.Code), authMessage(ae.Code))
		return
	}

	if qe, ok := query.IsError(err); ok {
		utils.RespondWithErrorCode(w, r, http.StatusBadRequest, string(qe.Code), qe.Error())
		return
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		utils.RespondWithErrorCode(w, r, http.StatusBadRequest, CodeValidation, validationMessage(verrs))
		return
	}

	var inputErr *services.InputError
	if errors.As(err, &inputErr) {
		utils.RespondWithError(w, r, http.StatusBadRequest, inputErr.Message)
		return
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		utils.RespondWithError(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, services.ErrUsernameTaken):
		utils.RespondWithError(w, r, http.StatusConflict, "Username is already taken")
	case errors.Is(err, services.ErrForbidden):
		utils.RespondWithError(w, r, http.StatusForbidden, "You are not allowed to change this resource")
	default:
		log.Error().
			Err(err).
			Str("request_id", utils.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
		utils.RespondWithError(w, r, http.StatusInternalServerError, "Something went wrong. Please try again later")
	}
}

func authMessage(code services.AuthCode) string {
	if code == services.CodeInvalidCredentials {
		return "Invalid username or password"
	}
	return "Authentication failed. Please log in!"
}

func validationMessage(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// objectIDParam parses the URL parameter name as an ObjectID. A malformed
// id is a 400.
func objectIDParam(r *http.Request, name string) (bson.ObjectID, error) {
	raw := chi.URLParam(r, name)
	id, err := bson.ObjectIDFromHex(raw)
	if err != nil {
		return bson.ObjectID{}, &services.InputError{Message: fmt.Sprintf("%s is not a valid id", name)}
	}
	return id, nil
}

// principalFrom returns the principal placed in the context by the session
// gate. Handlers mounted behind the gate always have one.
func principalFrom(w http.ResponseWriter, r *http.Request) (*models.Principal, bool) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		utils.RespondWithErrorCode(w, r, http.StatusUnauthorized, string(services.CodeUnauthorized), authMessage(services.CodeUnauthorized))
		return nil, false
	}
	return principal, true
}
