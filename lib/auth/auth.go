package auth

import (
	"encoding/json"
	"fmt"
	"strconv"

	"homecare/lib/models"

	"github.com/aws/aws-lambda-go/events"
)

// Claims represents the JWT claims extracted from the API Gateway authorizer context.
// user_id and role are injected by the token customizer.
type Claims struct {
	UserID    int64       `json:"user_id"`
	Email     string      `json:"email"`
	CognitoID string      `json:"sub"`
	Role      models.Role `json:"role"`
}

// Actor is the caller as seen by the service layer.
func (c *Claims) Actor() models.Actor {
	return models.Actor{UserID: c.UserID, Role: c.Role}
}

// ExtractClaimsFromRequest extracts and parses JWT claims from API Gateway request
func ExtractClaimsFromRequest(request events.APIGatewayProxyRequest) (*Claims, error) {
	var claimsMap map[string]interface{}
	var ok bool

	// Cognito user pool authorizers nest claims; custom authorizers do not.
	if authClaims, exists := request.RequestContext.Authorizer["claims"]; exists {
		claimsMap, ok = authClaims.(map[string]interface{})
	}
	if !ok {
		claimsMap = request.RequestContext.Authorizer
		ok = (claimsMap != nil)
	}
	if !ok || claimsMap == nil {
		return nil, fmt.Errorf("claims not found in authorizer context")
	}

	userID, err := int64Claim(claimsMap, "user_id")
	if err != nil {
		return nil, err
	}

	email, ok := claimsMap["email"].(string)
	if !ok {
		return nil, fmt.Errorf("email not found or invalid in claims")
	}

	cognitoID, ok := claimsMap["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("sub not found or invalid in claims")
	}

	// A missing or unknown role never grants admin.
	role := models.RoleClient
	if raw, ok := claimsMap["role"].(string); ok {
		if parsed, err := models.ParseRole(raw); err == nil {
			role = parsed
		}
	}

	return &Claims{
		UserID:    userID,
		Email:     email,
		CognitoID: cognitoID,
		Role:      role,
	}, nil
}

func int64Claim(claimsMap map[string]interface{}, name string) (int64, error) {
	value, exists := claimsMap[name]
	if !exists {
		return 0, fmt.Errorf("%s not found in claims", name)
	}

	switch v := value.(type) {
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse %s string: %w", name, err)
		}
		return id, nil
	case float64:
		// JSON numbers are parsed as float64
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%s has unexpected type", name)
	}
}

// ToJSON converts claims to JSON string for logging
func (c *Claims) ToJSON() string {
	data, _ := json.Marshal(c)
	return string(data)
}
