package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"homecare/lib/api"
	"homecare/lib/auth"
	"homecare/lib/clients"
	"homecare/lib/constants"
	"homecare/lib/data"
	"homecare/lib/models"
	"homecare/lib/service"
	"homecare/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

// Global variables for Lambda cold start optimization
var (
	logger             *logrus.Logger
	isLocal            bool
	ssmRepository      data.SSMRepository
	ssmParams          map[string]string
	sqlDB              *sql.DB
	appointmentService *service.AppointmentService
)

type transitionFunc func(context.Context, models.Actor, int64) (*models.Appointment, error)

func LambdaHandler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "LambdaHandler",
		"method":    request.HTTPMethod,
		"path":      request.Path,
		"resource":  request.Resource,
	}).Info("Appointment management request received")

	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Authentication failed")
		return api.ErrorResponse(http.StatusUnauthorized, "Authentication failed", logger), nil
	}
	actor := claims.Actor()
	logger.WithField("claims", claims.ToJSON()).Debug("Request authenticated")

	if request.HTTPMethod == http.MethodPost {
		transitions := map[string]transitionFunc{
			"/appointments/{appointmentId}/confirm":  appointmentService.Confirm,
			"/appointments/{appointmentId}/start":    appointmentService.Start,
			"/appointments/{appointmentId}/complete": appointmentService.Complete,
			"/appointments/{appointmentId}/no-show":  appointmentService.NoShow,
		}
		if fn, ok := transitions[request.Resource]; ok {
			return handleTransition(ctx, request, actor, fn), nil
		}
	}

	switch request.Resource {
	case "/appointments":
		switch request.HTTPMethod {
		case http.MethodGet:
			return handleListAppointments(ctx, request, actor), nil
		case http.MethodPost:
			return handleCreateAppointment(ctx, request, actor), nil
		}
	case "/appointments/available-slots":
		if request.HTTPMethod == http.MethodGet {
			return handleAvailableSlots(ctx, request), nil
		}
	case "/appointments/bulk-cancel":
		if request.HTTPMethod == http.MethodPost {
			return handleBulkCancel(ctx, request, actor), nil
		}
	case "/appointments/{appointmentId}":
		switch request.HTTPMethod {
		case http.MethodGet:
			return handleGetAppointment(ctx, request, actor), nil
		case http.MethodPut:
			return handleUpdateAppointment(ctx, request, actor), nil
		}
	case "/appointments/{appointmentId}/cancel":
		if request.HTTPMethod == http.MethodPost {
			return handleCancelAppointment(ctx, request, actor), nil
		}
	case "/appointments/{appointmentId}/reschedule":
		if request.HTTPMethod == http.MethodPost {
			return handleRescheduleAppointment(ctx, request, actor), nil
		}
	case "/appointments/{appointmentId}/confirm", "/appointments/{appointmentId}/start",
		"/appointments/{appointmentId}/complete", "/appointments/{appointmentId}/no-show":
	default:
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil
	}
	return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
}

// handleListAppointments handles GET /appointments
func handleListAppointments(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	resp, err := appointmentService.List(ctx, actor, request.QueryStringParameters)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, resp, logger)
}

// handleCreateAppointment handles POST /appointments
func handleCreateAppointment(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	var in models.CreateAppointmentInput
	if err := api.DecodeBody(request, &in); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	appt, err := appointmentService.Create(ctx, actor, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusCreated, appt, logger)
}

// handleAvailableSlots handles GET /appointments/available-slots
func handleAvailableSlots(ctx context.Context, request events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	resp, err := appointmentService.AvailableSlots(ctx, request.QueryStringParameters)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, resp, logger)
}

// handleBulkCancel handles POST /appointments/bulk-cancel. Per-id failures
// are part of a 200 response.
func handleBulkCancel(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	var in models.BulkCancelInput
	if err := api.DecodeBody(request, &in); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	result, err := appointmentService.BulkCancel(ctx, actor, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, result, logger)
}

// handleGetAppointment handles GET /appointments/{appointmentId}
func handleGetAppointment(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	id, err := api.PathID(request, "appointmentId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	appt, err := appointmentService.Get(ctx, actor, id)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, appt, logger)
}

// handleUpdateAppointment handles PUT /appointments/{appointmentId}
func handleUpdateAppointment(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	id, err := api.PathID(request, "appointmentId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	var in models.UpdateAppointmentInput
	if err := api.DecodeBody(request, &in); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	appt, err := appointmentService.Update(ctx, actor, id, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, appt, logger)
}

func handleTransition(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor, fn transitionFunc) events.APIGatewayProxyResponse {
	id, err := api.PathID(request, "appointmentId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	appt, err := fn(ctx, actor, id)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, appt, logger)
}

// handleCancelAppointment handles POST /appointments/{appointmentId}/cancel
func handleCancelAppointment(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	id, err := api.PathID(request, "appointmentId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	var in models.CancelInput
	if err := api.DecodeBody(request, &in); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	appt, err := appointmentService.Cancel(ctx, actor, id, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, appt, logger)
}

// handleRescheduleAppointment handles POST /appointments/{appointmentId}/reschedule
func handleRescheduleAppointment(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	id, err := api.PathID(request, "appointmentId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	var in models.RescheduleInput
	if err := api.DecodeBody(request, &in); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	appt, err := appointmentService.Reschedule(ctx, actor, id, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, appt, logger)
}

func main() {
	setup()
	lambda.Start(LambdaHandler)
}

func init() {
	isLocal = parseIsLocal()
	logger = setupLogger(isLocal)
}

func setup() {
	var err error

	ssmRepository = &data.SSMDao{
		SSM:    clients.NewSSMClient(isLocal),
		Logger: logger,
	}
	ssmParams, err = ssmRepository.GetParameters()
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     err.Error(),
		}).Fatal("Error while getting SSM params from parameter store")
	}

	if err := setupPostgresSQLClient(ssmParams); err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "setup",
			"error":     err.Error(),
		}).Fatal("Error setting up PostgreSQL client")
	}

	appointmentService = &service.AppointmentService{
		Repo: &data.AppointmentDao{DB: sqlDB, Logger: logger},
		Notifier: &service.Notifier{
			Messenger: clients.NewMessenger(ssmParams[constants.WHATSAPP_BRIDGE_URL], ssmParams[constants.WHATSAPP_BRIDGE_API_KEY], 10*time.Second),
			Users:     &data.UserDao{DB: sqlDB, Logger: logger},
			Logger:    logger,
		},
		Logger: logger,
	}

	logger.WithField("operation", "setup").Info("Appointment Management Lambda initialization completed successfully")
}

func parseIsLocal() bool {
	isLocal, _ := strconv.ParseBool(os.Getenv("IS_LOCAL"))
	return isLocal
}

func setupLogger(isLocal bool) *logrus.Logger {
	logger := logrus.New()
	util.SetLogLevel(logger, os.Getenv("LOG_LEVEL"))
	logger.SetFormatter(&logrus.JSONFormatter{PrettyPrint: isLocal})
	return logger
}

func setupPostgresSQLClient(ssmParams map[string]string) error {
	if err := data.RequireParameters(ssmParams,
		constants.DATABASE_RDS_ENDPOINT,
		constants.DATABASE_NAME,
		constants.DATABASE_USERNAME,
		constants.DATABASE_PASSWORD,
	); err != nil {
		return err
	}

	var err error
	sqlDB, err = clients.NewPostgresSQLClient(
		ssmParams[constants.DATABASE_RDS_ENDPOINT],
		ssmParams[constants.DATABASE_PORT],
		ssmParams[constants.DATABASE_NAME],
		ssmParams[constants.DATABASE_USERNAME],
		ssmParams[constants.DATABASE_PASSWORD],
		ssmParams[constants.SSL_MODE],
	)
	if err != nil {
		return fmt.Errorf("error creating PostgreSQL client: %w", err)
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.WithField("operation", "setupPostgresSQLClient").Debug("PostgreSQL client initialized successfully")
	}
	return nil
}
