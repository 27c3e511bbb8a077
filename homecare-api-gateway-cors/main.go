package main

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"homecare/lib/clients"
	"homecare/lib/constants"
	"homecare/lib/data"
	"homecare/lib/util"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

var (
	logger        *logrus.Logger
	isLocal       bool
	ssmRepository data.SSMRepository
	ssmParams     map[string]string
)

const (
	allowHeaders = "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token,Stripe-Signature"
	allowMethods = "GET, PUT, DELETE, POST, OPTIONS, PATCH"
)

// handler answers OPTIONS preflights for every API route.
func handler(request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestOrigin := headerValue(request.Headers, "origin")
	if requestOrigin == "" {
		logger.WithField("operation", "handler").Warn("origin is not present in the request headers")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, nil
	}

	for _, allowedOrigin := range strings.Split(ssmParams[constants.ALLOWED_ORIGINS], ",") {
		allowedOrigin = strings.TrimSpace(allowedOrigin)
		if allowedOrigin == "*" || strings.EqualFold(allowedOrigin, requestOrigin) {
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusOK,
				Headers: map[string]string{
					"Access-Control-Allow-Origin":      requestOrigin,
					"Access-Control-Allow-Headers":     allowHeaders,
					"Access-Control-Allow-Methods":     allowMethods,
					"Access-Control-Allow-Credentials": "true",
					"Vary":                             "Origin",
				},
			}, nil
		}
	}

	logger.WithFields(logrus.Fields{
		"operation": "handler",
		"origin":    requestOrigin,
	}).Warn("unauthorized origin from request header")
	return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
}

// headerValue looks a header up case-insensitively; API Gateway forwards
// whatever casing the client sent.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func main() {
	setup()
	lambda.Start(handler)
}

func init() {
	isLocal, _ = strconv.ParseBool(os.Getenv("IS_LOCAL"))

	logger = logrus.New()
	util.SetLogLevel(logger, os.Getenv("LOG_LEVEL"))
	logger.SetFormatter(&logrus.JSONFormatter{
		PrettyPrint: isLocal,
	})
}

func setup() {
	ssmRepository = &data.SSMDao{
		SSM:    clients.NewSSMClient(isLocal),
		Logger: logger,
	}

	var err error
	ssmParams, err = ssmRepository.GetParameters()
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Fatal("Error while getting ssm params from param store")
	}
}
