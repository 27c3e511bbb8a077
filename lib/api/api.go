package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"homecare/lib/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

func headers() map[string]string {
	return map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
		"Access-Control-Allow-Methods": "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}
}

// SuccessResponse creates a successful API Gateway response
func SuccessResponse(statusCode int, data interface{}, logger *logrus.Logger) events.APIGatewayProxyResponse {
	body, err := json.Marshal(data)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal response data")
		return ErrorResponse(http.StatusInternalServerError, "Internal server error", logger)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Body:       string(body),
		Headers:    headers(),
	}
}

// ErrorResponse creates an error API Gateway response
func ErrorResponse(statusCode int, message string, logger *logrus.Logger) events.APIGatewayProxyResponse {
	errorData := map[string]interface{}{
		"error":   true,
		"message": message,
		"status":  statusCode,
	}

	body, err := json.Marshal(errorData)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal error response")
		body = []byte(`{"error":true,"message":"Internal server error","status":500}`)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Body:       string(body),
		Headers:    headers(),
	}
}

// ValidationErrorResponse returns 422 with one message per offending field,
// so the form can render each next to its input.
func ValidationErrorResponse(fields map[string]string, logger *logrus.Logger) events.APIGatewayProxyResponse {
	errorData := map[string]interface{}{
		"error":   true,
		"message": "The given data was invalid.",
		"status":  http.StatusUnprocessableEntity,
		"errors":  fields,
	}

	body, err := json.Marshal(errorData)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal validation error response")
		return ErrorResponse(http.StatusInternalServerError, "Internal server error", logger)
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusUnprocessableEntity,
		Body:       string(body),
		Headers:    headers(),
	}
}

// DomainErrorResponse maps the error taxonomy onto HTTP:
// validation 422, state conflict 409, not found 404, forbidden 403.
// Anything else is logged and reported as a bare 500.
func DomainErrorResponse(err error, logger *logrus.Logger) events.APIGatewayProxyResponse {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return ValidationErrorResponse(verr.Fields, logger)
	case errors.Is(err, models.ErrValidation):
		return ValidationErrorResponse(map[string]string{"request": err.Error()}, logger)
	case errors.Is(err, models.ErrStateConflict):
		return ErrorResponse(http.StatusConflict, err.Error(), logger)
	case errors.Is(err, models.ErrNotFound):
		return ErrorResponse(http.StatusNotFound, err.Error(), logger)
	case errors.Is(err, models.ErrForbidden):
		return ErrorResponse(http.StatusForbidden, "You are not allowed to perform this action", logger)
	default:
		logger.WithError(err).Error("Unhandled error")
		return ErrorResponse(http.StatusInternalServerError, "Internal server error", logger)
	}
}

// PathID reads a numeric path parameter.
func PathID(request events.APIGatewayProxyRequest, name string) (int64, error) {
	raw := strings.TrimSpace(request.PathParameters[name])
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, models.FieldError(name, "must be a positive integer")
	}
	return id, nil
}

// DecodeBody unmarshals the JSON body into dest. Enum fields that reject
// their value surface as a field error on that field's kind.
func DecodeBody(request events.APIGatewayProxyRequest, dest any) error {
	if strings.TrimSpace(request.Body) == "" {
		return models.FieldError("body", "is required")
	}
	if err := json.Unmarshal([]byte(request.Body), dest); err != nil {
		var enumErr *models.InvalidEnumError
		if errors.As(err, &enumErr) {
			return models.FieldError(strings.ReplaceAll(enumErr.Kind, " ", "_"), enumErr.Error())
		}
		return models.FieldError("body", "must be valid JSON")
	}
	return nil
}
