package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strconv"

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

// Legacy v1 endpoints, kept for clients that have not moved to /requests.
var (
	logger                *logrus.Logger
	isLocal               bool
	ssmRepository         data.SSMRepository
	ssmParams             map[string]string
	sqlDB                 *sql.DB
	serviceRequestService *service.ServiceRequestService
)

func LambdaHandler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "LambdaHandler",
		"method":    request.HTTPMethod,
		"resource":  request.Resource,
	}).Info("Service request management request received")

	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Authentication failed")
		return api.ErrorResponse(http.StatusUnauthorized, "Authentication failed", logger), nil
	}
	actor := claims.Actor()
	logger.WithField("claims", claims.ToJSON()).Debug("Request authenticated")

	switch request.Resource {
	case "/v1/service-requests":
		switch request.HTTPMethod {
		case http.MethodGet:
			resp, err := serviceRequestService.List(ctx, actor, request.QueryStringParameters)
			return respond(http.StatusOK, resp, err), nil
		case http.MethodPost:
			var in models.CreateServiceRequestInput
			if err := api.DecodeBody(request, &in); err != nil {
				return api.DomainErrorResponse(err, logger), nil
			}
			sr, err := serviceRequestService.Create(ctx, actor, in)
			return respond(http.StatusCreated, sr, err), nil
		}
	case "/v1/service-requests/{serviceRequestId}":
		if request.HTTPMethod == http.MethodGet {
			return withID(request, func(id int64) (any, error) {
				return serviceRequestService.Get(ctx, actor, id)
			}), nil
		}
	case "/v1/service-requests/{serviceRequestId}/confirm":
		if request.HTTPMethod == http.MethodPost {
			var in models.ConfirmServiceRequestInput
			if request.Body != "" {
				if err := api.DecodeBody(request, &in); err != nil {
					return api.DomainErrorResponse(err, logger), nil
				}
			}
			return withID(request, func(id int64) (any, error) {
				return serviceRequestService.Confirm(ctx, actor, id, in)
			}), nil
		}
	case "/v1/service-requests/{serviceRequestId}/start":
		if request.HTTPMethod == http.MethodPost {
			return withID(request, func(id int64) (any, error) {
				return serviceRequestService.Start(ctx, actor, id)
			}), nil
		}
	case "/v1/service-requests/{serviceRequestId}/complete":
		if request.HTTPMethod == http.MethodPost {
			return withID(request, func(id int64) (any, error) {
				return serviceRequestService.Complete(ctx, actor, id)
			}), nil
		}
	case "/v1/service-requests/{serviceRequestId}/cancel":
		if request.HTTPMethod == http.MethodPost {
			var in models.CancelInput
			if request.Body != "" {
				if err := api.DecodeBody(request, &in); err != nil {
					return api.DomainErrorResponse(err, logger), nil
				}
			}
			return withID(request, func(id int64) (any, error) {
				return serviceRequestService.Cancel(ctx, actor, id, in)
			}), nil
		}
	default:
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil
	}
	return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
}

func withID(request events.APIGatewayProxyRequest, fn func(id int64) (any, error)) events.APIGatewayProxyResponse {
	id, err := api.PathID(request, "serviceRequestId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	out, err := fn(id)
	return respond(http.StatusOK, out, err)
}

func respond(status int, out any, err error) events.APIGatewayProxyResponse {
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(status, out, logger)
}

func main() {
	setup()
	lambda.Start(LambdaHandler)
}

func init() {
	isLocal, _ = strconv.ParseBool(os.Getenv("IS_LOCAL"))
	logger = logrus.New()
	util.SetLogLevel(logger, os.Getenv("LOG_LEVEL"))
	logger.SetFormatter(&logrus.JSONFormatter{PrettyPrint: isLocal})
}

func setup() {
	var err error
	ssmRepository = &data.SSMDao{SSM: clients.NewSSMClient(isLocal), Logger: logger}
	ssmParams, err = ssmRepository.GetParameters()
	if err != nil {
		logger.WithError(err).Fatal("Error while getting SSM params from parameter store")
	}

	sqlDB, err = clients.NewPostgresSQLClient(
		ssmParams[constants.DATABASE_RDS_ENDPOINT],
		ssmParams[constants.DATABASE_PORT],
		ssmParams[constants.DATABASE_NAME],
		ssmParams[constants.DATABASE_USERNAME],
		ssmParams[constants.DATABASE_PASSWORD],
		ssmParams[constants.SSL_MODE],
	)
	if err != nil {
		logger.WithError(fmt.Errorf("error creating PostgreSQL client: %w", err)).Fatal("Error setting up PostgreSQL client")
	}

	serviceRequestService = &service.ServiceRequestService{
		Repo:   &data.ServiceRequestDao{DB: sqlDB, Logger: logger},
		Logger: logger,
	}
}
