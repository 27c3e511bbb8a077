package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
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
	logger              *logrus.Logger
	isLocal             bool
	ssmRepository       data.SSMRepository
	ssmParams           map[string]string
	sqlDB               *sql.DB
	subscriptionService *service.SubscriptionService
)

func LambdaHandler(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.WithFields(logrus.Fields{
		"operation": "LambdaHandler",
		"method":    request.HTTPMethod,
		"path":      request.Path,
		"resource":  request.Resource,
	}).Info("Subscription management request received")

	// The provider calls the webhook without a user token; the signature
	// authenticates it instead.
	if request.Resource == "/billing/webhook" {
		if request.HTTPMethod != http.MethodPost {
			return api.ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed", logger), nil
		}
		return handleWebhook(ctx, request), nil
	}

	claims, err := auth.ExtractClaimsFromRequest(request)
	if err != nil {
		logger.WithError(err).Error("Authentication failed")
		return api.ErrorResponse(http.StatusUnauthorized, "Authentication failed", logger), nil
	}
	actor := claims.Actor()
	logger.WithField("claims", claims.ToJSON()).Debug("Request authenticated")

	switch request.Resource {
	case "/subscriptions":
		switch request.HTTPMethod {
		case http.MethodGet:
			resp, err := subscriptionService.Mine(ctx, actor, request.QueryStringParameters)
			return respond(http.StatusOK, resp, err), nil
		case http.MethodPost:
			var in models.SubscribeInput
			if err := api.DecodeBody(request, &in); err != nil {
				return api.DomainErrorResponse(err, logger), nil
			}
			sub, err := subscriptionService.Subscribe(ctx, actor, in)
			return respond(http.StatusCreated, sub, err), nil
		}
	case "/subscriptions/all":
		if request.HTTPMethod == http.MethodGet {
			resp, err := subscriptionService.All(ctx, actor, request.QueryStringParameters)
			return respond(http.StatusOK, resp, err), nil
		}
	case "/subscriptions/invoices":
		if request.HTTPMethod == http.MethodGet {
			invoices, err := subscriptionService.Invoices(ctx, actor)
			return respond(http.StatusOK, map[string]any{"invoices": invoices}, err), nil
		}
	case "/subscriptions/sync":
		if request.HTTPMethod == http.MethodPost {
			subs, err := subscriptionService.Sync(ctx, actor)
			return respond(http.StatusOK, map[string]any{"subscriptions": subs}, err), nil
		}
	case "/subscriptions/bulk-cancel":
		if request.HTTPMethod == http.MethodPost {
			var in models.BulkSubscriptionCancelInput
			if err := api.DecodeBody(request, &in); err != nil {
				return api.DomainErrorResponse(err, logger), nil
			}
			result, err := subscriptionService.BulkCancel(ctx, actor, in)
			return respond(http.StatusOK, result, err), nil
		}
	case "/subscriptions/{subscriptionId}":
		if request.HTTPMethod == http.MethodGet {
			id, err := api.PathID(request, "subscriptionId")
			if err != nil {
				return api.DomainErrorResponse(err, logger), nil
			}
			sub, err := subscriptionService.Get(ctx, actor, id)
			return respond(http.StatusOK, sub, err), nil
		}
	case "/subscriptions/{subscriptionId}/cancel":
		if request.HTTPMethod == http.MethodPost {
			id, err := api.PathID(request, "subscriptionId")
			if err != nil {
				return api.DomainErrorResponse(err, logger), nil
			}
			sub, err := subscriptionService.Cancel(ctx, actor, id)
			return respond(http.StatusOK, sub, err), nil
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

// handleWebhook handles POST /billing/webhook. A bad signature is a 400 so the
// provider stops retrying; storage failures are a 500 so it retries.
func handleWebhook(ctx context.Context, request events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	payload := []byte(request.Body)
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(request.Body)
		if err != nil {
			return api.ErrorResponse(http.StatusBadRequest, "Invalid payload encoding", logger)
		}
		payload = decoded
	}

	signature := request.Headers["Stripe-Signature"]
	if signature == "" {
		signature = request.Headers["stripe-signature"]
	}
	if signature == "" {
		return api.ErrorResponse(http.StatusBadRequest, "Missing signature", logger)
	}

	if err := subscriptionService.HandleWebhook(ctx, payload, signature); err != nil {
		if errors.Is(err, models.ErrValidation) {
			logger.WithError(err).Warn("Rejected webhook with invalid signature")
			return api.ErrorResponse(http.StatusBadRequest, "Invalid signature", logger)
		}
		logger.WithError(err).Error("Failed to apply webhook")
		return api.ErrorResponse(http.StatusInternalServerError, "Failed to process webhook", logger)
	}
	return api.SuccessResponse(http.StatusOK, map[string]bool{"received": true}, logger)
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

	subscriptionService = &service.SubscriptionService{
		Repo:    &data.SubscriptionDao{DB: sqlDB, Logger: logger},
		Users:   &data.UserDao{DB: sqlDB, Logger: logger},
		Billing: clients.NewStripeClient(ssmParams[constants.STRIPE_SECRET_KEY], ssmParams[constants.STRIPE_WEBHOOK_SECRET]),
		Logger:  logger,
	}
	if addr := ssmParams[constants.REDIS_ADDR]; addr != "" {
		useTLS, _ := strconv.ParseBool(ssmParams[constants.REDIS_TLS])
		cache := clients.NewRedisCache(clients.RedisConfig{
			Addr:     addr,
			Password: ssmParams[constants.REDIS_PASSWORD],
			UseTLS:   useTLS,
		}, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := cache.Ping(ctx); err != nil {
			// Invoices are still served, just uncached.
			logger.WithError(err).Warn("Redis ping failed")
		}
		cancel()
		subscriptionService.Cache = cache
	}

	logger.WithField("operation", "setup").Info("Subscription Management Lambda initialization completed successfully")
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
