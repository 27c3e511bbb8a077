// Package main implements the Cognito Post-Confirmation trigger that creates
// the portal account for a newly confirmed user.
//
// Every self-signup becomes a client. Admins are promoted afterwards through
// PATCH /users/{userId}/role. Cognito retries the trigger on timeouts, so the
// insert is idempotent on the Cognito ID.
//
// The handler never returns an error: a failed insert is logged with the
// correlation ID and the user can still sign in. The token customizer then
// issues a token without a user_id claim and the API rejects it until the row
// exists.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	"homecare/lib/clients"
	"homecare/lib/constants"
	"homecare/lib/data"
	"homecare/lib/models"
	"homecare/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Global variables for Lambda cold start optimization
var (
	logger         *logrus.Logger
	isLocal        bool
	ssmRepository  data.SSMRepository
	ssmParams      map[string]string
	sqlDB          *sql.DB
	userRepository data.UserRepository
)

// SignupRequest is the data extracted from the Post-Confirmation event.
type SignupRequest struct {
	CognitoID     string
	Email         string
	Name          string
	Phone         string
	CorrelationID string
}

func Handler(ctx context.Context, event events.CognitoEventUserPoolsPostConfirmation) (events.CognitoEventUserPoolsPostConfirmation, error) {
	correlationID := uuid.New().String()

	signupRequest, err := extractSignupData(event, correlationID)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"correlation_id": correlationID,
			"trigger_source": event.TriggerSource,
			"operation":      "Handler",
			"error":          err.Error(),
		}).Error("Failed to extract signup data from Cognito event")
		return event, nil
	}

	logger.WithFields(logrus.Fields{
		"correlation_id": signupRequest.CorrelationID,
		"cognito_id":     signupRequest.CognitoID,
		"email":          signupRequest.Email,
		"operation":      "Handler",
	}).Debug("Processing Cognito Post-Confirmation event")

	user, err := userRepository.CreateUser(ctx, &models.CreateUserRequest{
		CognitoID: signupRequest.CognitoID,
		Name:      signupRequest.Name,
		Email:     signupRequest.Email,
		Phone:     signupRequest.Phone,
	})
	if err != nil {
		logger.WithFields(logrus.Fields{
			"correlation_id": signupRequest.CorrelationID,
			"cognito_id":     signupRequest.CognitoID,
			"operation":      "Handler",
			"error":          err.Error(),
		}).Error("Failed to create user, user can still login but has no portal account yet")
		return event, nil
	}

	logger.WithFields(logrus.Fields{
		"correlation_id": signupRequest.CorrelationID,
		"cognito_id":     signupRequest.CognitoID,
		"user_id":        user.ID,
		"operation":      "Handler",
	}).Info("Portal account created for confirmed user")

	return event, nil
}

// extractSignupData reads the Cognito user and the optional profile fields
// the signup form passes through ClientMetadata.
func extractSignupData(event events.CognitoEventUserPoolsPostConfirmation, correlationID string) (*SignupRequest, error) {
	cognitoID := event.UserName
	if sub := event.Request.UserAttributes["sub"]; sub != "" {
		cognitoID = sub
	}
	if cognitoID == "" {
		return nil, fmt.Errorf("cognito ID (username) is empty")
	}

	email := strings.ToLower(strings.TrimSpace(event.Request.UserAttributes["email"]))
	if email == "" {
		return nil, fmt.Errorf("email attribute is missing from Cognito event")
	}

	name := strings.TrimSpace(event.Request.ClientMetadata["name"])
	if name == "" {
		name = strings.TrimSpace(event.Request.UserAttributes["name"])
	}
	if name == "" {
		// Placeholder until the user edits their profile.
		name = strings.SplitN(email, "@", 2)[0]
	}

	phone := strings.TrimSpace(event.Request.ClientMetadata["phone"])
	if phone == "" {
		phone = strings.TrimSpace(event.Request.UserAttributes["phone_number"])
	}

	return &SignupRequest{
		CognitoID:     cognitoID,
		Email:         email,
		Name:          name,
		Phone:         phone,
		CorrelationID: correlationID,
	}, nil
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

func main() {
	setup()
	lambda.Start(Handler)
}

func init() {
	isLocal, _ = strconv.ParseBool(os.Getenv("IS_LOCAL"))
	logger = logrus.New()
	util.SetLogLevel(logger, os.Getenv("LOG_LEVEL"))
	logger.SetFormatter(&logrus.JSONFormatter{PrettyPrint: isLocal})
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

	userRepository = &data.UserDao{DB: sqlDB, Logger: logger}

	logger.WithField("operation", "setup").Info("User Signup Lambda initialization completed successfully")
}
