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
	logger         *logrus.Logger
	isLocal        bool
	ssmRepository  data.SSMRepository
	ssmParams      map[string]string
	sqlDB          *sql.DB
	requestService *service.RequestService
)

func LambdaHandler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "LambdaHandler",
		"method":    request.HTTPMethod,
		"path":      request.Path,
		"resource":  request.Resource,
	}).Info("Request management request received")

	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Authentication failed")
		return api.ErrorResponse(http.StatusUnauthorized, "Authentication failed", logger), nil
	}
	actor := claims.Actor()
	logger.WithField("claims", claims.ToJSON()).Debug("Request authenticated")

	switch request.Resource {
	case "/requests":
		switch request.HTTPMethod {
		case http.MethodGet:
			return handleListRequests(ctx, request, actor), nil
		case http.MethodPost:
			return handleCreateRequest(ctx, request, actor), nil
		}
	case "/requests/{requestId}":
		switch request.HTTPMethod {
		case http.MethodGet:
			return handleGetRequest(ctx, request, actor), nil
		case http.MethodPut:
			return handleUpdateRequest(ctx, request, actor), nil
		}
	case "/requests/{requestId}/review":
		if request.HTTPMethod == http.MethodPost {
			return handleReviewRequest(ctx, request, actor), nil
		}
	case "/requests/{requestId}/start":
		if request.HTTPMethod == http.MethodPost {
			return handleSimpleTransition(ctx, request, actor, requestService.Start), nil
		}
	case "/requests/{requestId}/complete":
		if request.HTTPMethod == http.MethodPost {
			return handleSimpleTransition(ctx, request, actor, requestService.Complete), nil
		}
	case "/requests/{requestId}/cancel":
		if request.HTTPMethod == http.MethodPost {
			return handleCancelRequest(ctx, request, actor), nil
		}
	default:
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil
	}
	return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
}

// handleListRequests handles GET /requests
func handleListRequests(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	resp, err := requestService.List(ctx, actor, request.QueryStringParameters)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, resp, logger)
}

// handleCreateRequest handles POST /requests
func handleCreateRequest(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	var in models.CreateRequestInput
	if err := api.DecodeBody(request, &in); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	req, err := requestService.Create(ctx, actor, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusCreated, req, logger)
}

// handleGetRequest handles GET /requests/{requestId}
func handleGetRequest(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	id, err := api.PathID(request, "requestId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	req, err := requestService.Get(ctx, actor, id)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, req, logger)
}

// handleUpdateRequest handles PUT /requests/{requestId}
func handleUpdateRequest(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	id, err := api.PathID(request, "requestId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	var in models.UpdateRequestInput
	if err := api.DecodeBody(request, &in); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	req, err := requestService.Update(ctx, actor, id, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, req, logger)
}

// handleReviewRequest handles POST /requests/{requestId}/review. The body is
// optional.
func handleReviewRequest(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	id, err := api.PathID(request, "requestId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	var in models.TransitionInput
	if request.Body != "" {
		if err := api.DecodeBody(request, &in); err != nil {
			return api.DomainErrorResponse(err, logger)
		}
	}
	req, err := requestService.Review(ctx, actor, id, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, req, logger)
}

func handleSimpleTransition(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor,
	fn func(context.Context, models.Actor, int64) (*models.Request, error)) events.APIGatewayProxyResponse {
	id, err := api.PathID(request, "requestId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	req, err := fn(ctx, actor, id)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, req, logger)
}

// handleCancelRequest handles POST /requests/{requestId}/cancel
func handleCancelRequest(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	id, err := api.PathID(request, "requestId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	var in models.CancelInput
	if request.Body != "" {
		if err := api.DecodeBody(request, &in); err != nil {
			return api.DomainErrorResponse(err, logger)
		}
	}
	req, err := requestService.Cancel(ctx, actor, id, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, req, logger)
}

func main() {
	setup()
	lambda.Start(LambdaHandler)
}

func init() {
	isLocal = parseIsLocal()
	logger = setupLogger(isLocal)
}

// setup loads configuration and opens connections once per container.
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

	requestRepository := &data.RequestDao{DB: sqlDB, Logger: logger}
	userRepository := &data.UserDao{DB: sqlDB, Logger: logger}

	requestService = &service.RequestService{
		Repo: requestRepository,
		Attachments: &service.AttachmentService{
			Objects:  clients.NewS3Client(isLocal, ssmParams[constants.ATTACHMENTS_BUCKET]),
			Requests: requestRepository,
			Logger:   logger,
		},
		Notifier: &service.Notifier{
			Messenger: clients.NewMessenger(ssmParams[constants.WHATSAPP_BRIDGE_URL], ssmParams[constants.WHATSAPP_BRIDGE_API_KEY], 10*time.Second),
			Users:     userRepository,
			Logger:    logger,
		},
		Logger: logger,
	}

	logger.WithField("operation", "setup").Info("Request Management Lambda initialization completed successfully")
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
	return nil
}
