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

// Global variables for Lambda cold start optimization
var (
	logger        *logrus.Logger
	isLocal       bool
	ssmRepository data.SSMRepository
	ssmParams     map[string]string
	sqlDB         *sql.DB
	userService   *service.UserService
)

func LambdaHandler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "LambdaHandler",
		"method":    request.HTTPMethod,
		"path":      request.Path,
		"resource":  request.Resource,
	}).Info("User management request received")

	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Authentication failed")
		return api.ErrorResponse(http.StatusUnauthorized, "Authentication failed", logger), nil
	}
	actor := claims.Actor()
	logger.WithField("claims", claims.ToJSON()).Debug("Request authenticated")

	switch request.Resource {
	case "/me":
		if request.HTTPMethod == http.MethodGet {
			return handleGetMe(ctx, claims), nil
		}
	case "/users":
		if request.HTTPMethod == http.MethodGet {
			return handleGetUsers(ctx, request, actor), nil
		}
	case "/users/{userId}":
		switch request.HTTPMethod {
		case http.MethodGet:
			return handleGetUser(ctx, request, actor), nil
		case http.MethodPut:
			return handleUpdateUser(ctx, request, actor), nil
		case http.MethodDelete:
			return handleDeleteUser(ctx, request, actor), nil
		}
	case "/users/{userId}/toggle-status":
		if request.HTTPMethod == http.MethodPatch {
			return handleToggleStatus(ctx, request, actor), nil
		}
	case "/users/{userId}/role":
		if request.HTTPMethod == http.MethodPatch {
			return handleChangeRole(ctx, request, actor), nil
		}
	default:
		return api.ErrorResponse(http.StatusNotFound, "Endpoint not found", logger), nil
	}
	return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
}

// handleGetMe handles GET /me
func handleGetMe(ctx context.Context, claims *auth.Claims) events.APIGatewayProxyResponse {
	user, err := userService.Me(ctx, claims.CognitoID)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, user, logger)
}

// handleGetUsers handles GET /users
func handleGetUsers(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	resp, err := userService.List(ctx, actor, request.QueryStringParameters)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, resp, logger)
}

// handleGetUser handles GET /users/{userId}
func handleGetUser(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	userID, err := api.PathID(request, "userId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	user, err := userService.Get(ctx, actor, userID)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, user, logger)
}

// handleUpdateUser handles PUT /users/{userId}
func handleUpdateUser(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	userID, err := api.PathID(request, "userId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	var in models.UpdateUserRequest
	if err := api.DecodeBody(request, &in); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	user, err := userService.Update(ctx, actor, userID, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, user, logger)
}

// handleDeleteUser handles DELETE /users/{userId}
func handleDeleteUser(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	userID, err := api.PathID(request, "userId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	if err := userService.Delete(ctx, actor, userID); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, map[string]string{"message": "User deleted successfully"}, logger)
}

// handleToggleStatus handles PATCH /users/{userId}/toggle-status
func handleToggleStatus(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	userID, err := api.PathID(request, "userId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	user, err := userService.ToggleActive(ctx, actor, userID)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, user, logger)
}

// handleChangeRole handles PATCH /users/{userId}/role
func handleChangeRole(ctx context.Context, request events.APIGatewayProxyRequest, actor models.Actor) events.APIGatewayProxyResponse {
	userID, err := api.PathID(request, "userId")
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	var in models.UpdateRoleRequest
	if err := api.DecodeBody(request, &in); err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	user, err := userService.ChangeRole(ctx, actor, userID, in)
	if err != nil {
		return api.DomainErrorResponse(err, logger)
	}
	return api.SuccessResponse(http.StatusOK, user, logger)
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

	userPoolID := ssmParams[constants.COGNITO_USER_POOL_ID]
	if userPoolID == "" {
		logger.Fatal("COGNITO_USER_POOL_ID not found in SSM parameters")
	}

	userService = &service.UserService{
		Repo:          &data.UserDao{DB: sqlDB, Logger: logger},
		Identity:      clients.NewCognitoClient(isLocal, userPoolID),
		Subscriptions: &data.SubscriptionDao{DB: sqlDB, Logger: logger},
		Logger:        logger,
	}

	logger.WithField("operation", "setup").Info("User Management Lambda initialization completed successfully")
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
