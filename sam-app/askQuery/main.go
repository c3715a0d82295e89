package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	requestsigner "github.com/opensearch-project/opensearch-go/v2/signer/awsv2"

	"vision-assist/archive"
	"vision-assist/config"
	"vision-assist/gemini"
	"vision-assist/meta"
	"vision-assist/service"
	"vision-assist/service/query"
)

const defaultSecretID = "gemini-api-key"

type lambdaHandler struct {
	assistant *service.Assistant
	logger    *slog.Logger
}

func (l *lambdaHandler) handler(ctx context.Context, request events.APIGatewayProxyRequest) (response events.APIGatewayProxyResponse, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			l.logger.ErrorContext(ctx, "panic while handling request", slog.Any("error", recovered))
			response = jsonResponse(http.StatusInternalServerError, query.ErrorBody{
				Error: fmt.Sprintf("Internal server error: %v", recovered),
			})
			err = nil
		}
	}()

	if request.HTTPMethod != "" && request.HTTPMethod != http.MethodPost {
		return jsonResponse(http.StatusMethodNotAllowed, query.ErrorBody{Error: "method not allowed"}), nil
	}

	body := request.Body
	if request.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			l.logger.ErrorContext(ctx, "failed to decode request body", slog.Any("error", err))
			return jsonResponse(http.StatusBadRequest, query.ErrorBody{Error: "Invalid request payload: " + err.Error()}), nil
		}
		body = string(decoded)
	}

	var payload query.RequestPayload
	if strings.TrimSpace(body) != "" {
		if err := json.Unmarshal([]byte(body), &payload); err != nil {
			l.logger.ErrorContext(ctx, "failed to parse request body", slog.Any("error", err))
			return jsonResponse(http.StatusBadRequest, query.ErrorBody{Error: "Invalid request payload: " + err.Error()}), nil
		}
	}

	answer, err := l.assistant.Answer(ctx, payload.Query)
	if errors.Is(err, service.ErrEmptyQuery) {
		return jsonResponse(http.StatusBadRequest, query.ErrorBody{Error: "No query provided."}), nil
	}
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to answer query", slog.Any("error", err))
		return jsonResponse(http.StatusInternalServerError, query.ErrorBody{Error: fmt.Sprintf("Internal server error: %v", err)}), nil
	}

	return jsonResponse(http.StatusOK, answer), nil
}

func jsonResponse(status int, body any) events.APIGatewayProxyResponse {
	responseBytes, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       `{"error":"something went wrong building the response"}`,
			Headers:    map[string]string{"Content-Type": "application/json"},
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(responseBytes),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

type secretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func loadAPIKey(ctx context.Context, sm secretGetter, secretID string) (string, error) {
	secret, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read secret %s: %w", secretID, err)
	}
	if secret.SecretString == nil || strings.TrimSpace(*secret.SecretString) == "" {
		return "", fmt.Errorf("secret %s has no string value", secretID)
	}
	return strings.TrimSpace(*secret.SecretString), nil
}

func getArchive(awsCfg aws.Config, cfg config.Archive) service.Archive {
	if !cfg.UsesOpenSearch() {
		return nil
	}

	signer, err := requestsigner.NewSignerWithService(awsCfg, "es")
	if err != nil {
		panic(err)
	}

	store, err := archive.New(cfg, signer)
	if err != nil {
		panic(err)
	}
	return store
}

func main() {
	logger := slog.Default()

	cfg, err := config.Read("")
	if err != nil {
		panic(err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		panic(err)
	}

	if cfg.APIKey == "" {
		secretID := os.Getenv("GEMINI_SECRET_ID")
		if secretID == "" {
			secretID = defaultSecretID
		}
		cfg.APIKey, err = loadAPIKey(context.Background(), secretsmanager.NewFromConfig(awsCfg), secretID)
		if err != nil {
			panic(err)
		}
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	client := gemini.NewClient(cfg, meta.GetPrompt(), gemini.WithLogger(logger))
	handler := lambdaHandler{
		assistant: service.NewAssistant(client, getArchive(awsCfg, cfg.Archive), logger),
		logger:    logger,
	}

	lambda.Start(handler.handler)
}
