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
	logger        *logrus.Logger
	isLocal       bool
	ssmRepository data.SSMRepository
	ssmParams     map[string]string
	sqlDB         *sql.DB
	chatService   *service.ChatService
)

func LambdaHandler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "LambdaHandler",
		"method":    request.HTTPMethod,
		"path":      request.Path,
		"resource":  request.Resource,
	}).Info("WhatsApp management request received")

	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Authentication failed")
		return api.ErrorResponse(http.StatusUnauthorized, "Authentication failed", logger), nil
	}
	actor := claims.Actor()
	logger.WithField("claims", claims.ToJSON()).Debug("Request authenticated")

	switch request.Resource {
	case "/whatsapp-chats":
		if request.HTTPMethod == http.MethodGet {
			resp, err := chatService.List(ctx, actor, request.QueryStringParameters)
			return respond(http.StatusOK, resp, err), nil
		}
	case "/whatsapp-chats/send":
		if request.HTTPMethod == http.MethodPost {
			return handleSend(ctx, request, actor), nil
		}
	case "/whatsapp-chats/{chatId}":
		if request.HTTPMethod == http.MethodGet {
			id, err := api.PathID(request, "chatId")
			if err != nil {
				return api.DomainErrorResponse(err, logger), nil
			}
			chat, err := chatService.Get(ctx, actor, id)
			return respond(http.StatusOK, chat, err), nil
		}
	default:
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil
	}
	return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
}

func respond(status int, out any, err error) events.APIGatewayProxyResponse {
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(status, out, logger)
}

// handleSend handles POST /whatsapp-chats/send
func handleSend(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	var in models.SendMessageInput
	if err := api.DecodeBody(request, &in); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	chat, err := chatService.Send(ctx, actor, in)
	return respond(http.StatusCreated, chat, err)
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

	chatService = &service.ChatService{
		Repo:   &data.WhatsappChatDao{DB: sqlDB, Logger: logger},
		Logger: logger,
	}
	// Leave Messenger as a nil interface so Send reports the bridge as missing.
	if messenger := clients.NewMessenger(ssmParams[constants.WHATSAPP_BRIDGE_URL], ssmParams[constants.WHATSAPP_BRIDGE_API_KEY], 15*time.Second); messenger != nil {
		chatService.Messenger = messenger
	} else {
		logger.WithField("operation", "setup").Warn("WhatsApp bridge URL not configured; sending is disabled")
	}

	logger.WithField("operation", "setup").Info("WhatsApp Management Lambda initialization completed successfully")
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
