package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

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
	logger            *logrus.Logger
	isLocal           bool
	ssmRepository     data.SSMRepository
	ssmParams         map[string]string
	sqlDB             *sql.DB
	attachmentService *service.AttachmentService
)

func LambdaHandler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "LambdaHandler",
		"method":    request.HTTPMethod,
		"path":      request.Path,
		"resource":  request.Resource,
	}).Info("Attachment management request received")

	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Authentication failed")
		return api.ErrorResponse(http.StatusUnauthorized, "Authentication failed", logger), nil
	}
	actor := claims.Actor()
	logger.WithField("claims", claims.ToJSON()).Debug("Request authenticated")

	switch request.Resource {
	case "/attachments/upload-url":
		if request.HTTPMethod == http.MethodPost {
			return handleUploadURL(ctx, request, actor), nil
		}
	case "/requests/{requestId}/attachments/{index}/download-url":
		if request.HTTPMethod == http.MethodGet {
			return handleDownloadURL(ctx, request, actor), nil
		}
	default:
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil
	}
	return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
}

// handleUploadURL handles POST /attachments/upload-url
func handleUploadURL(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	var in models.AttachmentUploadRequest
	if err := api.DecodeBody(request, &in); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	resp, err := attachmentService.UploadURL(ctx, actor, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, resp, logger)
}

// handleDownloadURL handles GET /requests/{requestId}/attachments/{index}/download-url
func handleDownloadURL(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	requestID, err := api.PathID(request, "requestId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	index, err := strconv.Atoi(strings.TrimSpace(request.PathParameters["index"]))
	if err != nil || index < 0 {
		return api.DomainErrorResponse(models.FieldError("index", "must be a non-negative integer"), logger)
	}
	resp, err := attachmentService.DownloadURL(ctx, actor, requestID, index)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, resp, logger)
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

	bucket := ssmParams[constants.ATTACHMENTS_BUCKET]
	if bucket == "" {
		logger.WithField("operation", "setup").Fatal("Attachments bucket is not configured")
	}

	attachmentService = &service.AttachmentService{
		Objects:  clients.NewS3Client(isLocal, bucket),
		Requests: &data.RequestDao{DB: sqlDB, Logger: logger},
		Logger:   logger,
	}

	logger.WithFields(logrus.Fields{
		"operation": "setup",
		"bucket":    bucket,
	}).Info("Attachment Management Lambda initialization completed successfully")
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
