package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"swarmgate/internal/apierr"
	"swarmgate/internal/config"
	"swarmgate/internal/logger"
	"swarmgate/internal/server"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
)

var (
	initOnce  sync.Once
	ginLambda *ginadapter.GinLambda
	initErr   error
)

// setup runs once per Lambda container (cold start). The scheduler is not
// started here; snapshots and digests run from the long-lived server.
func setup() error {
	initOnce.Do(func() {
		cfg, warning, err := config.LoadConfig(os.Getenv("SWARMGATE_CONFIG"))
		if err != nil {
			initErr = err
			return
		}
		log := logger.New(cfg.Debug)
		if warning != "" {
			log.Warn(warning)
		}
		gin.SetMode(gin.ReleaseMode)

		app, err := server.Build(context.Background(), cfg, log)
		if err != nil {
			initErr = err
			return
		}
		// Wrap Gin router with Lambda adapter
		ginLambda = ginadapter.New(app.Router)
	})
	return initErr
}

// Handler is the Lambda entrypoint for API Gateway REST/HTTP API (proxy integration)
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := setup(); err != nil {
		slog.Error("Failed to initialize gateway", "error", err)
		return initFailure(), nil
	}
	return ginLambda.ProxyWithContext(ctx, req)
}

// initFailure is the response served while the container cannot start.
func initFailure() events.APIGatewayProxyResponse {
	e := apierr.New(apierr.KindInternal, apierr.ReasonInternal, "Server error.")
	body, _ := json.Marshal(apierr.Body(e))
	return events.APIGatewayProxyResponse{
		StatusCode: e.Kind.Status(),
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func main() {
	lambda.Start(Handler)
}
