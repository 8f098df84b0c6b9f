package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"go.uber.org/zap"

	"worldbuilder/infrastructure/config"
	"worldbuilder/infrastructure/di"
	"worldbuilder/interfaces/http/rest/middleware"
)

var (
	chiLambda *chiadapter.ChiLambdaV2
	container *di.Container
)

// setup runs once per cold start.
func setup() {
	start := time.Now()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	container, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	chiLambda = chiadapter.NewV2(container.Router().Setup())

	container.Logger.Info("Lambda cold start completed",
		zap.Duration("duration", time.Since(start)),
		zap.String("authMode", cfg.AuthMode),
	)
}

// Handler forwards an API Gateway HTTP API request to the router.
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	req.Headers = withAuthorizerHeaders(req)
	return chiLambda.ProxyWithContextV2(ctx, req)
}

// withAuthorizerHeaders replaces any client-sent authorizer headers with the
// claims API Gateway's JWT authorizer verified for this request.
func withAuthorizerHeaders(req events.APIGatewayV2HTTPRequest) map[string]string {
	headers := make(map[string]string, len(req.Headers)+2)
	for k, v := range req.Headers {
		if middleware.IsAuthorizerHeader(k) {
			continue
		}
		headers[k] = v
	}

	authz := req.RequestContext.Authorizer
	if authz == nil || authz.JWT == nil {
		return headers
	}
	if sub := authz.JWT.Claims["sub"]; sub != "" {
		headers[middleware.AuthorizerSubjectHeader] = sub
	}
	if email := authz.JWT.Claims["email"]; email != "" {
		headers[middleware.AuthorizerEmailHeader] = email
	}
	return headers
}

func main() {
	setup()
	lambda.Start(Handler)
}
